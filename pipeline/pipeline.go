// Package pipeline implements an adaptive retrieval-augmented answer loop.
// A query is classified, planned, fanned out to evidence sources, synthesized
// into a cited answer, and evaluated for completeness; at most one refinement
// pass may follow before the best available answer is returned.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/queryweave/cache"
	"github.com/sweetpotato0/queryweave/config"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/pkg/logging"
	"github.com/sweetpotato0/queryweave/pkg/telemetry"
	"github.com/sweetpotato0/queryweave/rerank"
	"github.com/sweetpotato0/queryweave/source"
)

// maxPassCeiling is the hard bound on plan/fetch/synthesize/evaluate rounds.
// It is not configurable upward: the second pass exists to patch evidence
// gaps, not to chase a perfect score.
const maxPassCeiling = 2

// passState tracks where a pass is in its lifecycle. Transitions only move
// forward; the evaluate step either finishes the run or opens exactly one
// more pass.
type passState int

const (
	statePlanned passState = iota
	stateFetched
	stateSynthesized
	stateEvaluated
	stateDone
)

// Pipeline wires the answer workflow together. Stages only depend on data
// produced by the previous one, so the run loop below is a straight-line
// state machine rather than a graph.
type Pipeline struct {
	cfg      *Config
	fastPath *FastPathClassifier
	planner  *planner
	orch     *orchestrator
	synth    *synthesizer
	eval     *evaluator
	scorer   *rerank.Scorer
	registry *source.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a fully wired pipeline. A synthesizer client (or Default) is
// required; everything else can stay nil and degrades gracefully: no planner
// means every query is answered directly, no evaluator means single-pass, no
// cache means every fetch is live, no registry means no retrieval.
func New(clients Clients, registry *source.Registry, opts ...Option) (*Pipeline, error) {
	cfg := applyOptions(nil, opts)
	if cfg.MaxPasses > maxPassCeiling {
		cfg.MaxPasses = maxPassCeiling
	}

	if err := config.NewValidator().
		RequireNonEmpty("name", cfg.Name).
		ValidateRange("max_passes", cfg.MaxPasses, 1, maxPassCeiling).
		RequirePositive("max_subqueries", cfg.MaxSubQueries).
		RequirePositive("max_context_items", cfg.MaxContextItems).
		Error(); err != nil {
		return nil, err
	}

	if clients.synthesizer() == nil {
		return nil, fmt.Errorf("synthesizer client is required")
	}
	if registry == nil {
		registry = source.NewRegistry()
	}

	logger := logging.WithComponent("pipeline").With("pipeline", cfg.Name)
	p := &Pipeline{
		cfg:      cfg,
		fastPath: NewFastPathClassifier(),
		planner:  newPlanner(clients.planner(), cfg, logger),
		orch:     newOrchestrator(registry, cfg, logger),
		synth:    newSynthesizer(clients.synthesizer(), cfg, logger),
		eval:     newEvaluator(clients.evaluator(), cfg, logger),
		scorer:   cfg.scorer,
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer("queryweave/pipeline"),
	}
	p.logger.Info("pipeline initialised",
		"max_passes", cfg.MaxPasses,
		"sources", len(registry.Available()),
		"cache", cfg.cache != nil,
		"scorer", cfg.scorer != nil,
	)
	return p, nil
}

// Run answers one query. The returned result is immutable; callers own it.
func (p *Pipeline) Run(ctx context.Context, query Query) (result *AnswerResult, err error) {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" {
		return nil, ErrEmptyQuery
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer func() { telemetry.End(span, err) }()

	if len(query.Attachments) == 0 && p.fastPath.Classify(query.Text) {
		p.logger.Debug("fast path", "query", query.Text)
		span.SetAttributes(attribute.Bool("fast_path", true))
		text, _, err := p.synth.Compose(ctx, query, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
		}
		return &AnswerResult{
			Text:        text,
			SourcesUsed: []evidence.SourceKind{},
			FastPath:    true,
			PassesUsed:  1,
		}, nil
	}

	answerKey := p.answerKey(query)
	if answerKey != "" {
		var cached AnswerResult
		if cacheErr := cache.GetJSON(ctx, p.cfg.cache, answerKey, &cached); cacheErr == nil {
			p.logger.Debug("answer served from cache", "query", query.Text)
			return &cached, nil
		}
	}

	available := p.availableSources(query)
	plan := p.planner.Plan(ctx, query.Text, available)
	span.SetAttributes(attribute.String("plan.mode", string(plan.Mode)))
	p.logger.Info("plan ready", "mode", plan.Mode, "subqueries", len(plan.SubQueries), "reason", plan.Reason)

	result, err = p.runPasses(ctx, query, plan, available)
	if err != nil {
		return nil, err
	}

	if answerKey != "" {
		if cacheErr := cache.SetJSON(ctx, p.cfg.cache, answerKey, result, p.cfg.AnswerTTL); cacheErr != nil {
			p.logger.Debug("answer cache write failed", "error", cacheErr)
		}
	}
	return result, nil
}

// runPasses drives the bounded pass loop. Evidence accumulates across passes
// and is rescored as a whole, so a second pass can only refine the answer,
// never lose what the first pass found.
func (p *Pipeline) runPasses(ctx context.Context, query Query, plan Plan, available []evidence.SourceKind) (*AnswerResult, error) {
	maxPasses := p.cfg.MaxPasses
	if query.Fast {
		maxPasses = 1
	}

	var (
		pool        []evidence.Item
		contributed = make(map[evidence.SourceKind]bool)
		executed    = make(map[string]struct{})
		answer      string
		cited       []evidence.Item
		evaluation  Evaluation
		pass        int
	)

	state := statePlanned
	for state != stateDone {
		switch state {
		case statePlanned:
			pass++
			results := p.orch.Fetch(ctx, plan.SubQueries)
			for _, res := range results {
				executed[subQueryKey(res.SubQuery)] = struct{}{}
				if res.Failed() {
					continue
				}
				if len(res.Items) > 0 {
					contributed[res.SubQuery.Source] = true
					pool = append(pool, res.Items...)
				}
			}
			state = stateFetched

		case stateFetched:
			ordered := p.arrange(ctx, query.Text, pool)
			text, used, err := p.synth.Compose(ctx, query, ordered)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
			}
			answer, cited = text, used
			state = stateSynthesized

		case stateSynthesized:
			if plan.Mode == ModeDirect || pass >= maxPasses {
				// Nothing a second pass could add; skip the review call.
				evaluation = Evaluation{Complete: true, CompletenessScore: 1}
			} else {
				evaluation = p.eval.Evaluate(ctx, query.Text, answer, evidenceSummary(pool), available)
			}
			state = stateEvaluated

		case stateEvaluated:
			if evaluation.Complete || pass >= maxPasses || len(evaluation.Followups) == 0 {
				state = stateDone
				break
			}
			next := p.planner.normalize(Plan{SubQueries: evaluation.Followups}, query.Text, available, executed)
			if len(next.SubQueries) == 0 {
				p.logger.Debug("no viable follow-ups, finishing", "pass", pass)
				state = stateDone
				break
			}
			p.logger.Info("refinement pass", "followups", len(next.SubQueries), "issues", evaluation.Issues)
			plan.SubQueries = next.SubQueries
			state = statePlanned
		}
	}

	if plan.Mode != ModeDirect && len(pool) == 0 && p.cfg.NoEvidenceMessage != "" {
		answer = p.cfg.NoEvidenceMessage + "\n\n" + answer
	}

	citations := make([]Citation, 0, len(cited))
	for idx, item := range cited {
		citations = append(citations, Citation{Index: idx + 1, Source: item.Source, Locator: item.Locator})
	}

	return &AnswerResult{
		Text:        answer,
		Citations:   citations,
		SourcesUsed: sortedKinds(contributed),
		PassesUsed:  pass,
	}, nil
}

// arrange orders the evidence pool for synthesis. Direct tool outputs come
// first in a stable order; textual retrieval results (documents and web
// pages) follow, reranked when a scorer is configured. The whole pool is
// rearranged every pass so late evidence competes with early evidence.
func (p *Pipeline) arrange(ctx context.Context, question string, pool []evidence.Item) []evidence.Item {
	if len(pool) == 0 {
		return nil
	}

	var direct, textual []evidence.Item
	for _, item := range pool {
		switch item.Source {
		case evidence.SourceLocalKB, evidence.SourceWeb:
			textual = append(textual, item)
		default:
			direct = append(direct, item)
		}
	}

	kindOrder := make(map[evidence.SourceKind]int, len(evidence.Known()))
	for idx, kind := range evidence.Known() {
		kindOrder[kind] = idx
	}
	sort.SliceStable(direct, func(i, j int) bool {
		if kindOrder[direct[i].Source] != kindOrder[direct[j].Source] {
			return kindOrder[direct[i].Source] < kindOrder[direct[j].Source]
		}
		return direct[i].Locator < direct[j].Locator
	})

	if len(textual) > 1 || (len(textual) == 1 && p.scorer != nil) {
		textual = p.rankTextual(ctx, question, textual)
	}
	return append(direct, textual...)
}

func (p *Pipeline) rankTextual(ctx context.Context, question string, items []evidence.Item) []evidence.Item {
	if p.scorer != nil {
		candidates := make([]evidence.Scored, len(items))
		for idx, item := range items {
			candidates[idx] = evidence.Scored{Item: item}
		}
		scored, err := p.scorer.Score(ctx, question, candidates)
		if err == nil {
			ranked := make([]evidence.Item, len(scored))
			for idx, sc := range scored {
				ranked[idx] = sc.Item
			}
			return ranked
		}
		p.logger.Warn("rerank failed, falling back to raw scores", "error", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		si, sj := rawScore(items[i]), rawScore(items[j])
		if si != sj {
			return si > sj
		}
		return items[i].Locator < items[j].Locator
	})
	return items
}

func (p *Pipeline) availableSources(query Query) []evidence.SourceKind {
	all := p.registry.Available()
	if query.StrictLocal {
		for _, kind := range all {
			if kind == evidence.SourceLocalKB {
				return []evidence.SourceKind{evidence.SourceLocalKB}
			}
		}
		return nil
	}
	if !query.DisableWeb {
		return all
	}
	kept := all[:0]
	for _, kind := range all {
		if kind != evidence.SourceWeb {
			kept = append(kept, kind)
		}
	}
	return kept
}

// answerKey returns the final-answer cache key, or "" when the query must
// not be cached (attachments make the answer non-reproducible from text).
func (p *Pipeline) answerKey(query Query) string {
	if p.cfg.cache == nil || len(query.Attachments) > 0 {
		return ""
	}
	return cache.Key("answer", map[string]string{
		"query":  query.Text,
		"strict": fmt.Sprintf("%t", query.StrictLocal),
		"fast":   fmt.Sprintf("%t", query.Fast),
		"noweb":  fmt.Sprintf("%t", query.DisableWeb),
	})
}

func subQueryKey(sq SubQuery) string {
	return string(sq.Source) + "|" + cache.Normalize(sq.Query)
}

func rawScore(item evidence.Item) float64 {
	if item.RawScore == nil {
		return 0
	}
	return *item.RawScore
}

func sortedKinds(contributed map[evidence.SourceKind]bool) []evidence.SourceKind {
	kinds := make([]evidence.SourceKind, 0, len(contributed))
	for _, kind := range evidence.Known() {
		if contributed[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// evidenceSummary compresses the pool into one line per item for the
// evaluator, which needs coverage signals rather than full content.
func evidenceSummary(pool []evidence.Item) string {
	var sb strings.Builder
	for _, item := range pool {
		content := truncateRunes(strings.TrimSpace(item.Content), 160)
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", item.Source, item.Locator, content)
	}
	return strings.TrimSpace(sb.String())
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
