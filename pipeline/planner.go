package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sweetpotato0/queryweave/cache"
	"github.com/sweetpotato0/queryweave/config"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/llm"
)

type planner struct {
	llm           llm.Client
	prompt        string
	maxSubQueries int
	policy        config.RoutingPolicy
	logger        *slog.Logger
}

func newPlanner(client llm.Client, cfg *Config, logger *slog.Logger) *planner {
	return &planner{
		llm:           client,
		prompt:        cfg.PlannerPrompt,
		maxSubQueries: cfg.MaxSubQueries,
		policy:        cfg.Routing,
		logger:        logger,
	}
}

// Plan asks the model for an execution plan and normalizes it against the
// routing policy and the available sources. It never returns an error: any
// planning failure degrades to a direct answer with no sub-queries.
func (p *planner) Plan(ctx context.Context, question string, available []evidence.SourceKind) Plan {
	if p.llm == nil {
		return Plan{Mode: ModeDirect, Reason: "planner LLM is not configured"}
	}

	systemPrompt := strings.ReplaceAll(p.prompt, "{{max_subqueries}}", strconv.Itoa(p.maxSubQueries))
	systemPrompt = strings.ReplaceAll(systemPrompt, "{{sources}}", joinKinds(available))
	messages := []*llm.Message{
		llm.NewMessage(llm.RoleSystem, systemPrompt),
		llm.NewMessage(llm.RoleUser, fmt.Sprintf("User question: %s\nReturn JSON only.", question)),
	}

	resp, err := p.llm.Complete(ctx, messages)
	if err != nil {
		p.logger.Warn("planning failed, degrading to direct answer", "error", err)
		return Plan{Mode: ModeDirect, Reason: fmt.Sprintf("planning failed: %v", err)}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		p.logger.Warn("planner returned empty response, degrading to direct answer")
		return Plan{Mode: ModeDirect, Reason: "planner returned empty response"}
	}

	plan, err := decodeJSON[Plan](resp.Content)
	if err != nil {
		p.logger.Warn("planner output invalid, degrading to direct answer", "error", err)
		return Plan{Mode: ModeDirect, Reason: fmt.Sprintf("planner output invalid: %v", err)}
	}

	return p.normalize(*plan, question, available, nil)
}

// normalize enforces the plan invariants the model cannot be trusted with:
// every target is an available source, domain keywords force-route away from
// open web, queries needing both a specialist source and current web context
// get a parallel web sub-query, and the mode always matches the sub-query
// count. executed lists (source, normalized query) pairs already fetched in
// earlier passes; duplicates of those are dropped.
func (p *planner) normalize(plan Plan, question string, available []evidence.SourceKind, executed map[string]struct{}) Plan {
	avail := make(map[evidence.SourceKind]struct{}, len(available))
	for _, kind := range available {
		avail[kind] = struct{}{}
	}

	seen := make(map[string]struct{})
	kept := plan.SubQueries[:0]
	for _, sq := range plan.SubQueries {
		sq.Query = strings.TrimSpace(sq.Query)
		if sq.Query == "" {
			sq.Query = strings.TrimSpace(sq.Description)
		}
		if sq.Query == "" {
			continue
		}

		sq.Source = p.retarget(sq, avail)
		if _, ok := avail[sq.Source]; !ok {
			p.logger.Debug("dropping sub-query with unavailable source", "source", sq.Source, "query", sq.Query)
			continue
		}

		key := string(sq.Source) + "|" + cache.Normalize(sq.Query)
		if _, dup := seen[key]; dup {
			continue
		}
		if _, done := executed[key]; done {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, sq)
		if len(kept) == p.maxSubQueries {
			break
		}
	}
	plan.SubQueries = kept

	// Dual routing: a question that names a specialist domain but also asks
	// for judgement or current happenings gets web context alongside the
	// domain fetch.
	if domain, ok := p.policy.MatchDomain(question); ok {
		_, domainAvail := avail[domain]
		_, webAvail := avail[evidence.SourceWeb]
		if domainAvail && webAvail && domain != evidence.SourceWeb &&
			p.hasSource(plan.SubQueries, domain) && !p.hasSource(plan.SubQueries, evidence.SourceWeb) &&
			p.policy.NeedsWebContext(question) && len(plan.SubQueries) < p.maxSubQueries {
			webKey := string(evidence.SourceWeb) + "|" + cache.Normalize(question)
			if _, done := executed[webKey]; !done {
				plan.SubQueries = append(plan.SubQueries, SubQuery{
					Description: "open-web context for the question",
					Query:       question,
					Source:      evidence.SourceWeb,
					Priority:    len(plan.SubQueries) + 1,
				})
			}
		}
	}

	for idx := range plan.SubQueries {
		plan.SubQueries[idx].ID = fmt.Sprintf("q%d", idx+1)
		if plan.SubQueries[idx].Priority <= 0 {
			plan.SubQueries[idx].Priority = idx + 1
		}
	}

	switch len(plan.SubQueries) {
	case 0:
		plan.Mode = ModeDirect
	case 1:
		plan.Mode = ModeSingle
	default:
		plan.Mode = ModeMulti
	}
	return plan
}

// retarget picks the source a sub-query should actually hit. Domain keywords
// always win over an open-web target, and an unavailable target falls back to
// the matched domain or the open web before the sub-query is dropped.
func (p *planner) retarget(sq SubQuery, avail map[evidence.SourceKind]struct{}) evidence.SourceKind {
	target := sq.Source
	if !target.Valid() {
		target = evidence.SourceWeb
	}

	if domain, ok := p.policy.MatchDomain(sq.Query + " " + sq.Description); ok && domain != target {
		if _, have := avail[domain]; have && (target == evidence.SourceWeb || !p.available(target, avail)) {
			return domain
		}
	}

	if !p.available(target, avail) {
		if _, have := avail[evidence.SourceWeb]; have {
			return evidence.SourceWeb
		}
	}
	return target
}

func (p *planner) available(kind evidence.SourceKind, avail map[evidence.SourceKind]struct{}) bool {
	_, ok := avail[kind]
	return ok
}

func (p *planner) hasSource(subqueries []SubQuery, kind evidence.SourceKind) bool {
	for _, sq := range subqueries {
		if sq.Source == kind {
			return true
		}
	}
	return false
}

func joinKinds(kinds []evidence.SourceKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
