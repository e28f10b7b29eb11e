package pipeline

import (
	"time"

	"github.com/sweetpotato0/queryweave/cache"
	"github.com/sweetpotato0/queryweave/config"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/llm"
	"github.com/sweetpotato0/queryweave/rerank"
)

// TokenCounter measures prompt context size. The default estimator assumes
// roughly four characters per token; wire a real tokenizer for tight budgets.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// Clients groups the model clients used by the pipeline stages. Any stage
// client left nil falls back to Default. Evaluator may stay nil entirely, in
// which case evaluation is skipped and every answer counts as complete.
type Clients struct {
	Default     llm.Client
	Planner     llm.Client
	Synthesizer llm.Client
	Evaluator   llm.Client
}

func (c Clients) planner() llm.Client {
	if c.Planner != nil {
		return c.Planner
	}
	return c.Default
}

func (c Clients) synthesizer() llm.Client {
	if c.Synthesizer != nil {
		return c.Synthesizer
	}
	return c.Default
}

func (c Clients) evaluator() llm.Client {
	return c.Evaluator
}

// Config controls behaviour of the answer pipeline. It groups pass limits,
// fan-out budgets, cache lifetimes, and the stage prompts so callers can
// construct reproducible pipelines from a single struct.
type Config struct {
	Name               string        // Logical name for tracing/logging
	MaxPasses          int           // Pass ceiling; clamped to the hard limit of 2
	MaxSubQueries      int           // Upper bound for planner emitted sub-queries
	MaxFollowups       int           // Upper bound for evaluator follow-ups
	MaxContextItems    int           // How many evidence items reach the synthesizer
	ContextTokenBudget int           // Token ceiling for the evidence block
	AdapterTimeout     time.Duration // Per-adapter call deadline
	PassBudget         time.Duration // Wall-clock budget for one fetch fan-out
	AnswerTTL          time.Duration // Cache lifetime for final answers
	SubQueryTTL        time.Duration // Default cache lifetime for sub-query results

	PlannerPrompt     string // System prompt for the planning stage
	SynthesisPrompt   string // System prompt for grounded synthesis
	DirectPrompt      string // System prompt when answering without evidence
	EvaluatorPrompt   string // System prompt for the evaluation stage
	NoEvidenceMessage string // Disclosure prefix when retrieval came back empty

	// SubQueryTTLBySource overrides SubQueryTTL per source. Volatile sources
	// such as time and finance want much shorter lifetimes than documents.
	SubQueryTTLBySource map[evidence.SourceKind]time.Duration

	Routing config.RoutingPolicy

	scorer  *rerank.Scorer
	counter TokenCounter
	cache   cache.Cache
}

// Option customises the pipeline configuration.
type Option func(*Config)

// WithName overrides the logical pipeline name used in logs and traces.
func WithName(name string) Option {
	return func(cfg *Config) {
		if name != "" {
			cfg.Name = name
		}
	}
}

// WithMaxPasses sets how many plan/fetch/synthesize/evaluate rounds may run.
// Values above the hard ceiling of two are clamped at construction time.
func WithMaxPasses(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxPasses = n
		}
	}
}

// WithMaxSubQueries caps how many sub-queries a single plan may carry.
func WithMaxSubQueries(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxSubQueries = n
		}
	}
}

// WithMaxContextItems caps how many scored evidence items are handed to the
// synthesizer.
func WithMaxContextItems(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxContextItems = n
		}
	}
}

// WithContextTokenBudget bounds the token size of the evidence block.
func WithContextTokenBudget(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ContextTokenBudget = n
		}
	}
}

// WithAdapterTimeout sets the per-adapter call deadline.
func WithAdapterTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.AdapterTimeout = d
		}
	}
}

// WithPassBudget sets the wall-clock budget for one fetch fan-out. Sub-queries
// still in flight when the budget expires count as failed and are excluded.
func WithPassBudget(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.PassBudget = d
		}
	}
}

// WithCache plugs in an advisory cache for answers and sub-query results.
// A nil cache disables caching without any behavioural change.
func WithCache(c cache.Cache) Option {
	return func(cfg *Config) {
		cfg.cache = c
	}
}

// WithAnswerTTL sets the cache lifetime for final answers.
func WithAnswerTTL(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.AnswerTTL = d
		}
	}
}

// WithSubQueryTTL sets the default cache lifetime for sub-query results.
func WithSubQueryTTL(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.SubQueryTTL = d
		}
	}
}

// WithSourceTTL overrides the sub-query cache lifetime for one source.
func WithSourceTTL(kind evidence.SourceKind, d time.Duration) Option {
	return func(cfg *Config) {
		if d <= 0 {
			return
		}
		if cfg.SubQueryTTLBySource == nil {
			cfg.SubQueryTTLBySource = make(map[evidence.SourceKind]time.Duration)
		}
		cfg.SubQueryTTLBySource[kind] = d
	}
}

// WithScorer plugs in the rerank stage. Without a scorer, textual evidence is
// ordered by raw retrieval score only.
func WithScorer(s *rerank.Scorer) Option {
	return func(cfg *Config) {
		cfg.scorer = s
	}
}

// WithTokenCounter overrides the default character-based token estimator.
func WithTokenCounter(tc TokenCounter) Option {
	return func(cfg *Config) {
		if tc != nil {
			cfg.counter = tc
		}
	}
}

// WithRoutingPolicy swaps the keyword routing table consulted during plan
// normalization.
func WithRoutingPolicy(policy config.RoutingPolicy) Option {
	return func(cfg *Config) {
		cfg.Routing = policy
	}
}

// WithPlannerPrompt sets the system prompt used by the planning stage.
func WithPlannerPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.PlannerPrompt = prompt
		}
	}
}

// WithSynthesisPrompt sets the system prompt for grounded synthesis.
func WithSynthesisPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.SynthesisPrompt = prompt
		}
	}
}

// WithDirectPrompt sets the system prompt used when no evidence is gathered.
func WithDirectPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.DirectPrompt = prompt
		}
	}
}

// WithEvaluatorPrompt sets the system prompt for the evaluation stage.
func WithEvaluatorPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.EvaluatorPrompt = prompt
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:               "queryweave",
		MaxPasses:          maxPassCeiling,
		MaxSubQueries:      5,
		MaxFollowups:       3,
		MaxContextItems:    10,
		ContextTokenBudget: 6000,
		AdapterTimeout:     20 * time.Second,
		PassBudget:         45 * time.Second,
		AnswerTTL:          10 * time.Minute,
		SubQueryTTL:        5 * time.Minute,
		SubQueryTTLBySource: map[evidence.SourceKind]time.Duration{
			evidence.SourceTime:    30 * time.Second,
			evidence.SourceFinance: time.Minute,
			evidence.SourceWeather: 5 * time.Minute,
			evidence.SourceWeb:     15 * time.Minute,
			evidence.SourceLocalKB: 30 * time.Minute,
		},
		Routing:         config.DefaultRoutingPolicy(),
		PlannerPrompt:   defaultPlannerPrompt,
		SynthesisPrompt: defaultSynthesisPrompt,
		DirectPrompt:    defaultDirectPrompt,
		EvaluatorPrompt: defaultEvaluatorPrompt,
		NoEvidenceMessage: "No supporting evidence could be retrieved for this question; " +
			"the answer below relies on general knowledge only.",
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
