package rerank

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/cache"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/vector"
)

const weightEpsilon = 1e-6

// CrossEncoder scores a query and a candidate text jointly, rather than via
// independently computed embeddings. Implementations live under
// contrib/crossencoder; scores are expected in [0,1] but the scorer only
// relies on relative order within one call.
type CrossEncoder interface {
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Weights is the fixed convex combination used for the composite score.
// The three components must sum to 1.
type Weights struct {
	CrossEncoder float64
	Freshness    float64
	Credibility  float64
}

// DefaultWeights mirror the deployed scoring profile.
func DefaultWeights() Weights {
	return Weights{CrossEncoder: 0.6, Freshness: 0.25, Credibility: 0.15}
}

func (w Weights) validate() error {
	sum := w.CrossEncoder + w.Freshness + w.Credibility
	if math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("composite weights must sum to 1, got %.6f", sum)
	}
	if w.CrossEncoder < 0 || w.Freshness < 0 || w.Credibility < 0 {
		return fmt.Errorf("composite weights must be non-negative")
	}
	return nil
}

// Option customises the scorer.
type Option func(*Scorer)

// WithWeights overrides the composite weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithFreshnessTau sets the freshness decay time constant.
func WithFreshnessTau(tau time.Duration) Option {
	return func(s *Scorer) {
		if tau > 0 {
			s.freshnessTau = tau
		}
	}
}

// WithDedupThreshold sets the cosine similarity above which two candidates are
// treated as near-duplicates.
func WithDedupThreshold(threshold float64) Option {
	return func(s *Scorer) {
		if threshold > 0 && threshold <= 1 {
			s.dedupThreshold = threshold
		}
	}
}

// WithCredibilityTable replaces the per-domain credibility priors.
func WithCredibilityTable(table map[string]float64) Option {
	return func(s *Scorer) {
		if table != nil {
			s.credibility = table
		}
	}
}

// WithCache memoizes cross-encoder scores keyed on (locator, query).
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Scorer) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithEmbedder enables embedding-based near-duplicate detection. Without an
// embedder the scorer falls back to lexical overlap.
func WithEmbedder(emb vector.Embedder) Option {
	return func(s *Scorer) { s.embedder = emb }
}

// Scorer rescales fused candidates into one composite relevance score and
// removes near-duplicates. Scoring is order-independent with respect to the
// input order: the output depends only on candidate content.
type Scorer struct {
	encoder        CrossEncoder
	embedder       vector.Embedder
	cache          cache.Cache
	cacheTTL       time.Duration
	weights        Weights
	freshnessTau   time.Duration
	dedupThreshold float64
	credibility    map[string]float64

	// neutral scores applied when a signal is unavailable
	neutralFreshness   float64
	defaultCredibility float64
}

// NewScorer creates a scorer around the given cross-encoder.
func NewScorer(encoder CrossEncoder, opts ...Option) (*Scorer, error) {
	if encoder == nil {
		return nil, fmt.Errorf("cross-encoder is required")
	}
	s := &Scorer{
		encoder:            encoder,
		weights:            DefaultWeights(),
		freshnessTau:       30 * 24 * time.Hour,
		dedupThreshold:     0.9,
		credibility:        defaultCredibilityTable(),
		neutralFreshness:   0.5,
		defaultCredibility: 0.4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.weights.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Score attaches cross-encoder, freshness and credibility scores to each
// candidate, combines them into the composite score and deduplicates. The
// result is ordered by descending composite score. Scoring an already
// deduplicated set again removes nothing further.
func (s *Scorer) Score(ctx context.Context, query string, candidates []evidence.Scored) ([]evidence.Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ceScores, err := s.crossEncoderScores(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scored := make([]evidence.Scored, len(candidates))
	for i, cand := range candidates {
		sc := cand
		sc.CrossEncoderScore = ceScores[i]
		sc.FreshnessScore = s.freshness(cand.Item, now)
		sc.CredibilityScore = s.credibilityScore(cand.Item)
		sc.CompositeScore = s.weights.CrossEncoder*sc.CrossEncoderScore +
			s.weights.Freshness*sc.FreshnessScore +
			s.weights.Credibility*sc.CredibilityScore
		scored[i] = sc
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].CompositeScore != scored[j].CompositeScore {
			return scored[i].CompositeScore > scored[j].CompositeScore
		}
		return scored[i].Item.Locator < scored[j].Item.Locator
	})

	return s.deduplicate(ctx, scored)
}

func (s *Scorer) crossEncoderScores(ctx context.Context, query string, candidates []evidence.Scored) ([]float64, error) {
	scores := make([]float64, len(candidates))
	missing := make([]int, 0, len(candidates))
	texts := make([]string, 0, len(candidates))

	for i, cand := range candidates {
		key := s.rerankKey(query, cand.Item)
		var cached float64
		if s.cache != nil && cache.GetJSON(ctx, s.cache, key, &cached) == nil {
			scores[i] = cached
			continue
		}
		missing = append(missing, i)
		texts = append(texts, cand.Item.Content)
	}

	if len(missing) > 0 {
		fresh, err := s.encoder.ScorePairs(ctx, query, texts)
		if err != nil {
			return nil, fmt.Errorf("cross-encoder: %w", err)
		}
		if len(fresh) != len(missing) {
			return nil, fmt.Errorf("cross-encoder returned %d scores for %d pairs", len(fresh), len(missing))
		}
		for j, idx := range missing {
			scores[idx] = fresh[j]
			if s.cache != nil {
				_ = cache.SetJSON(ctx, s.cache, s.rerankKey(query, candidates[idx].Item), fresh[j], s.cacheTTL)
			}
		}
	}
	return scores, nil
}

func (s *Scorer) rerankKey(query string, item evidence.Item) string {
	return cache.Key("rerank", map[string]string{
		"query":   query,
		"locator": item.Locator,
		"source":  string(item.Source),
	})
}

// freshness decays exponentially with age. Items without a timestamp get the
// neutral default: neither penalized to zero nor treated as maximally fresh.
func (s *Scorer) freshness(item evidence.Item, now time.Time) float64 {
	age, ok := item.Age(now)
	if !ok {
		return s.neutralFreshness
	}
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Seconds() / s.freshnessTau.Seconds())
}

func (s *Scorer) credibilityScore(item evidence.Item) float64 {
	if domain := locatorDomain(item.Locator); domain != "" {
		if prior, ok := s.credibility[domain]; ok {
			return prior
		}
	}
	if prior, ok := s.credibility[string(item.Source)]; ok {
		return prior
	}
	if item.CredibilityPrior > 0 {
		return item.CredibilityPrior
	}
	return s.defaultCredibility
}

// deduplicate drops candidates too similar to an already kept, higher-scored
// one. The input is ordered by descending composite score, so the survivor of
// a near-duplicate group is always the best-scoring member.
func (s *Scorer) deduplicate(ctx context.Context, scored []evidence.Scored) ([]evidence.Scored, error) {
	if len(scored) <= 1 {
		return scored, nil
	}

	var vectors [][]float32
	if s.embedder != nil {
		texts := make([]string, len(scored))
		for i, sc := range scored {
			texts[i] = sc.Item.Content
		}
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil || len(vectors) != len(scored) {
			vectors = nil // fall back to lexical similarity
		}
	}

	kept := make([]evidence.Scored, 0, len(scored))
	keptVecs := make([][]float32, 0, len(scored))
	for i, cand := range scored {
		duplicate := false
		for j := range kept {
			var sim float64
			if vectors != nil {
				sim = float64(vector.CosineSimilarity(vectors[i], keptVecs[j]))
			} else {
				sim = lexicalSimilarity(cand.Item.Content, kept[j].Item.Content)
			}
			if sim > s.dedupThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, cand)
		if vectors != nil {
			keptVecs = append(keptVecs, vectors[i])
		} else {
			keptVecs = append(keptVecs, nil)
		}
	}
	return kept, nil
}

// lexicalSimilarity is the Jaccard overlap of lowercase token sets.
func lexicalSimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range tokensA {
		if _, ok := tokensB[tok]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func locatorDomain(locator string) string {
	if !strings.Contains(locator, "://") {
		return ""
	}
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func defaultCredibilityTable() map[string]float64 {
	return map[string]float64{
		string(evidence.SourceLocalKB):   0.8,
		string(evidence.SourceWeb):       0.6,
		string(evidence.SourceWeather):   0.85,
		string(evidence.SourceFinance):   0.9,
		string(evidence.SourceTransport): 0.8,
		string(evidence.SourceTime):      0.95,
		string(evidence.SourceVision):    0.7,
	}
}
