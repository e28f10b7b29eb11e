package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweetpotato0/queryweave/cache/store"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/pkg/logging"
	"github.com/sweetpotato0/queryweave/source"
)

func newTestOrchestrator(t *testing.T, cfg *Config, adapters ...*stubAdapter) *orchestrator {
	t.Helper()
	registry := source.NewRegistry()
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			t.Fatalf("register adapter: %v", err)
		}
	}
	if cfg == nil {
		cfg = defaultConfig()
	}
	return newOrchestrator(registry, cfg, logging.WithComponent("orchestrator_test"))
}

func TestFetchIsolatesAdapterFailures(t *testing.T) {
	weather := &stubAdapter{kind: evidence.SourceWeather, items: []evidence.Item{
		{Source: evidence.SourceWeather, Content: "27°C", Locator: "open-meteo:x"},
	}}
	finance := &stubAdapter{kind: evidence.SourceFinance, err: source.NewError(evidence.SourceFinance, source.ErrUpstream, errors.New("api 500"))}
	orch := newTestOrchestrator(t, nil, weather, finance)

	results := orch.Fetch(context.Background(), []SubQuery{
		{ID: "q1", Query: "weather", Source: evidence.SourceWeather},
		{ID: "q2", Query: "stock", Source: evidence.SourceFinance},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byID := map[string]FetchResult{}
	for _, res := range results {
		byID[res.SubQuery.ID] = res
	}
	if byID["q1"].Failed() || len(byID["q1"].Items) != 1 {
		t.Fatalf("expected q1 to succeed: %#v", byID["q1"])
	}
	if !byID["q2"].Failed() {
		t.Fatalf("expected q2 to fail")
	}
	srcErr, ok := source.AsError(byID["q2"].Err)
	if !ok || srcErr.Kind != source.ErrUpstream {
		t.Fatalf("expected typed upstream error, got %v", byID["q2"].Err)
	}
}

func TestFetchMarksSlowSubQueriesAsTimedOut(t *testing.T) {
	fast := &stubAdapter{kind: evidence.SourceTime, items: []evidence.Item{
		{Source: evidence.SourceTime, Content: "14:00", Locator: "clock:utc"},
	}}
	slow := &stubAdapter{kind: evidence.SourceWeb, delay: 500 * time.Millisecond}

	cfg := defaultConfig()
	cfg.PassBudget = 50 * time.Millisecond
	orch := newTestOrchestrator(t, cfg, fast, slow)

	results := orch.Fetch(context.Background(), []SubQuery{
		{ID: "q1", Query: "time now", Source: evidence.SourceTime},
		{ID: "q2", Query: "slow search", Source: evidence.SourceWeb},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawTimeout bool
	for _, res := range results {
		if res.SubQuery.ID != "q2" {
			continue
		}
		if !res.Failed() {
			t.Fatalf("expected q2 to time out")
		}
		srcErr, ok := source.AsError(res.Err)
		if !ok || srcErr.Kind != source.ErrTimeout {
			t.Fatalf("expected typed timeout, got %v", res.Err)
		}
		sawTimeout = true
	}
	if !sawTimeout {
		t.Fatalf("q2 missing from results")
	}
}

func TestFetchServesCachedResults(t *testing.T) {
	weather := &stubAdapter{kind: evidence.SourceWeather, items: []evidence.Item{
		{Source: evidence.SourceWeather, Content: "27°C", Locator: "open-meteo:x"},
	}}
	cfg := defaultConfig()
	cfg.cache = store.NewInMemoryStore()
	orch := newTestOrchestrator(t, cfg, weather)

	sub := []SubQuery{{ID: "q1", Query: "hong kong weather", Source: evidence.SourceWeather}}

	first := orch.Fetch(context.Background(), sub)
	if first[0].Cached {
		t.Fatalf("first fetch must be live")
	}
	second := orch.Fetch(context.Background(), sub)
	if !second[0].Cached {
		t.Fatalf("second fetch must come from cache")
	}
	if weather.callCount() != 1 {
		t.Fatalf("expected a single adapter call, got %d", weather.callCount())
	}
	if len(second[0].Items) != 1 || second[0].Items[0].Content != "27°C" {
		t.Fatalf("cached items corrupted: %#v", second[0].Items)
	}
}

func TestFetchFailuresAreNotCached(t *testing.T) {
	flaky := &stubAdapter{kind: evidence.SourceWeb, err: source.NewError(evidence.SourceWeb, source.ErrUpstream, errors.New("boom"))}
	cfg := defaultConfig()
	cfg.cache = store.NewInMemoryStore()
	orch := newTestOrchestrator(t, cfg, flaky)

	sub := []SubQuery{{ID: "q1", Query: "news", Source: evidence.SourceWeb}}
	orch.Fetch(context.Background(), sub)
	orch.Fetch(context.Background(), sub)
	if flaky.callCount() != 2 {
		t.Fatalf("failures must stay uncached, got %d calls", flaky.callCount())
	}
}

func TestFetchUnknownAdapterIsTypedError(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	results := orch.Fetch(context.Background(), []SubQuery{
		{ID: "q1", Query: "anything", Source: evidence.SourceVision},
	})
	if len(results) != 1 || !results[0].Failed() {
		t.Fatalf("expected failed result, got %#v", results)
	}
	srcErr, ok := source.AsError(results[0].Err)
	if !ok || srcErr.Kind != source.ErrUpstream {
		t.Fatalf("expected typed upstream error, got %v", results[0].Err)
	}
}

func TestFetchWrapsAdapterDeadline(t *testing.T) {
	slow := &stubAdapter{kind: evidence.SourceWeb, delay: 300 * time.Millisecond}
	cfg := defaultConfig()
	cfg.AdapterTimeout = 30 * time.Millisecond
	cfg.PassBudget = 5 * time.Second
	orch := newTestOrchestrator(t, cfg, slow)

	results := orch.Fetch(context.Background(), []SubQuery{
		{ID: "q1", Query: "slow", Source: evidence.SourceWeb},
	})
	srcErr, ok := source.AsError(results[0].Err)
	if !ok || srcErr.Kind != source.ErrTimeout {
		t.Fatalf("expected per-adapter timeout, got %v", results[0].Err)
	}
}
