package pipeline

import (
	"context"
	"testing"

	"github.com/sweetpotato0/queryweave/config"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/pkg/logging"
)

func newTestPlanner(response string) *planner {
	cfg := defaultConfig()
	var client *stubLLM
	if response != "" {
		client = &stubLLM{response: response}
	}
	if client == nil {
		return newPlanner(nil, cfg, logging.WithComponent("planner_test"))
	}
	return newPlanner(client, cfg, logging.WithComponent("planner_test"))
}

func allSources() []evidence.SourceKind {
	return evidence.Known()
}

func TestPlanWithoutClientDegradesToDirect(t *testing.T) {
	p := newTestPlanner("")
	plan := p.Plan(context.Background(), "anything", allSources())
	if plan.Mode != ModeDirect || len(plan.SubQueries) != 0 {
		t.Fatalf("expected direct degradation, got %#v", plan)
	}
}

func TestPlanInvalidJSONDegradesToDirect(t *testing.T) {
	p := newTestPlanner("certainly! here is my plan: ...")
	plan := p.Plan(context.Background(), "find the report", allSources())
	if plan.Mode != ModeDirect || len(plan.SubQueries) != 0 {
		t.Fatalf("expected direct degradation, got %#v", plan)
	}
}

func TestNormalizeCapsAndRenumbersSubQueries(t *testing.T) {
	p := newTestPlanner("unused")
	raw := Plan{Mode: ModeMulti}
	for i := 0; i < 8; i++ {
		raw.SubQueries = append(raw.SubQueries, SubQuery{
			Query:  "topic variant " + string(rune('a'+i)),
			Source: evidence.SourceWeb,
		})
	}

	plan := p.normalize(raw, "broad research question", allSources(), nil)
	if len(plan.SubQueries) != p.maxSubQueries {
		t.Fatalf("expected cap at %d, got %d", p.maxSubQueries, len(plan.SubQueries))
	}
	for idx, sq := range plan.SubQueries {
		if sq.ID == "" || sq.Priority <= 0 {
			t.Fatalf("sub-query %d missing id or priority: %#v", idx, sq)
		}
	}
	if plan.SubQueries[0].ID != "q1" {
		t.Fatalf("expected q1 first, got %s", plan.SubQueries[0].ID)
	}
	if plan.Mode != ModeMulti {
		t.Fatalf("expected multi mode, got %s", plan.Mode)
	}
}

func TestNormalizeDropsDuplicatesAndBlanks(t *testing.T) {
	p := newTestPlanner("unused")
	raw := Plan{SubQueries: []SubQuery{
		{Query: "Harbour Bridge  history", Source: evidence.SourceWeb},
		{Query: "harbour bridge history", Source: evidence.SourceWeb},
		{Query: "   ", Source: evidence.SourceWeb},
	}}

	plan := p.normalize(raw, "harbour bridge", allSources(), nil)
	if len(plan.SubQueries) != 1 {
		t.Fatalf("expected 1 surviving sub-query, got %d", len(plan.SubQueries))
	}
	if plan.Mode != ModeSingle {
		t.Fatalf("expected single mode, got %s", plan.Mode)
	}
}

func TestNormalizeRetargetsDomainKeywords(t *testing.T) {
	p := newTestPlanner("unused")
	raw := Plan{SubQueries: []SubQuery{
		{Query: "tencent 股價 今日", Source: evidence.SourceWeb},
	}}

	plan := p.normalize(raw, "tencent 股價", allSources(), nil)
	if len(plan.SubQueries) != 1 || plan.SubQueries[0].Source != evidence.SourceFinance {
		t.Fatalf("expected finance retarget, got %#v", plan.SubQueries)
	}
}

func TestNormalizeFallsBackToWebForUnavailableSource(t *testing.T) {
	p := newTestPlanner("unused")
	raw := Plan{SubQueries: []SubQuery{
		{Query: "exhibition opening hours", Source: evidence.SourceVision},
	}}

	available := []evidence.SourceKind{evidence.SourceLocalKB, evidence.SourceWeb}
	plan := p.normalize(raw, "exhibition opening hours", available, nil)
	if len(plan.SubQueries) != 1 || plan.SubQueries[0].Source != evidence.SourceWeb {
		t.Fatalf("expected web fallback, got %#v", plan.SubQueries)
	}
}

func TestNormalizeDropsUnavailableWithoutWeb(t *testing.T) {
	p := newTestPlanner("unused")
	raw := Plan{SubQueries: []SubQuery{
		{Query: "train schedule", Source: evidence.SourceTransport},
	}}

	plan := p.normalize(raw, "train schedule", []evidence.SourceKind{evidence.SourceLocalKB}, nil)
	if len(plan.SubQueries) != 0 || plan.Mode != ModeDirect {
		t.Fatalf("expected empty direct plan, got %#v", plan)
	}
}

func TestNormalizeSkipsExecutedSubQueries(t *testing.T) {
	p := newTestPlanner("unused")
	executed := map[string]struct{}{
		"web|harbour bridge history": {},
	}
	raw := Plan{SubQueries: []SubQuery{
		{Query: "Harbour Bridge History", Source: evidence.SourceWeb},
		{Query: "harbour bridge engineers", Source: evidence.SourceWeb},
	}}

	plan := p.normalize(raw, "harbour bridge", allSources(), executed)
	if len(plan.SubQueries) != 1 || plan.SubQueries[0].Query != "harbour bridge engineers" {
		t.Fatalf("expected executed sub-query dropped, got %#v", plan.SubQueries)
	}
}

func TestNormalizeAddsWebContextOnlyWhenNeeded(t *testing.T) {
	p := newTestPlanner("unused")

	weatherOnly := Plan{SubQueries: []SubQuery{
		{Query: "victoria peak weather tomorrow", Source: evidence.SourceWeather},
	}}

	plain := p.normalize(weatherOnly, "victoria peak weather tomorrow", allSources(), nil)
	if len(plain.SubQueries) != 1 {
		t.Fatalf("plain weather query must stay single-source, got %#v", plain.SubQueries)
	}

	judged := p.normalize(Plan{SubQueries: []SubQuery{
		{Query: "victoria peak weather tomorrow", Source: evidence.SourceWeather},
	}}, "is it safe to hike given the weather tomorrow", allSources(), nil)
	if len(judged.SubQueries) != 2 {
		t.Fatalf("expected added web sub-query, got %#v", judged.SubQueries)
	}
	if judged.SubQueries[1].Source != evidence.SourceWeb {
		t.Fatalf("expected web as added source, got %s", judged.SubQueries[1].Source)
	}
	if judged.Mode != ModeMulti {
		t.Fatalf("expected multi mode after dual routing, got %s", judged.Mode)
	}
}

func TestNormalizeHonoursCustomPolicy(t *testing.T) {
	cfg := defaultConfig()
	cfg.Routing = config.RoutingPolicy{
		Version: "test",
		DomainKeywords: map[evidence.SourceKind][]string{
			evidence.SourceFinance: {"dividend"},
		},
	}
	p := newPlanner(&stubLLM{response: "unused"}, cfg, logging.WithComponent("planner_test"))

	plan := p.normalize(Plan{SubQueries: []SubQuery{
		{Query: "dividend history for utilities", Source: evidence.SourceWeb},
	}}, "dividend history", allSources(), nil)
	if plan.SubQueries[0].Source != evidence.SourceFinance {
		t.Fatalf("expected custom policy retarget, got %s", plan.SubQueries[0].Source)
	}
}
