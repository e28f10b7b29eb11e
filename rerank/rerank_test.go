package rerank

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
)

// keywordEncoder scores by whether the candidate contains the query terms.
type keywordEncoder struct{}

func (keywordEncoder) ScorePairs(_ context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i, text := range texts {
		if text == "" {
			continue
		}
		if sim := lexicalSimilarity(query, text); sim > 0 {
			scores[i] = sim
		}
	}
	return scores, nil
}

func newTestScorer(t *testing.T, opts ...Option) *Scorer {
	t.Helper()
	s, err := NewScorer(keywordEncoder{}, opts...)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func candidate(locator, content string, ts *time.Time) evidence.Scored {
	return evidence.Scored{Item: evidence.Item{
		Source:    evidence.SourceWeb,
		Content:   content,
		Locator:   locator,
		Timestamp: ts,
	}}
}

func TestNewScorerRejectsInvalidWeights(t *testing.T) {
	if _, err := NewScorer(keywordEncoder{}, WithWeights(Weights{CrossEncoder: 0.7, Freshness: 0.2, Credibility: 0.2})); err == nil {
		t.Fatal("expected error for weights summing above 1")
	}
	if _, err := NewScorer(keywordEncoder{}, WithWeights(Weights{CrossEncoder: 1.2, Freshness: -0.2, Credibility: 0})); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := NewScorer(nil); err == nil {
		t.Fatal("expected error without encoder")
	}
}

func TestScoreOrdersByCompositeDescending(t *testing.T) {
	s := newTestScorer(t)
	now := time.Now()
	cands := []evidence.Scored{
		candidate("a", "unrelated text entirely", &now),
		candidate("b", "peak tram schedule today", &now),
	}

	scored, err := s.Score(context.Background(), "peak tram schedule", cands)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scored[0].Item.Locator != "b" {
		t.Fatalf("expected relevant candidate first, got %s", scored[0].Item.Locator)
	}
	if scored[0].CompositeScore <= scored[1].CompositeScore {
		t.Fatal("composite scores not descending")
	}
}

func TestFreshnessDecaysExponentially(t *testing.T) {
	s := newTestScorer(t, WithFreshnessTau(24*time.Hour))
	now := time.Now()
	old := now.Add(-24 * time.Hour)

	fresh := s.freshness(evidence.Item{Timestamp: &now}, now)
	aged := s.freshness(evidence.Item{Timestamp: &old}, now)

	if math.Abs(fresh-1) > 1e-6 {
		t.Fatalf("zero age should score 1, got %f", fresh)
	}
	if math.Abs(aged-math.Exp(-1)) > 1e-6 {
		t.Fatalf("one tau of age should score e^-1, got %f", aged)
	}
}

func TestTauChangeKeepsOrderForIdenticalTimestamps(t *testing.T) {
	ts := time.Now().Add(-72 * time.Hour)
	build := func() []evidence.Scored {
		return []evidence.Scored{
			candidate("a", "ferry pier opening hours", &ts),
			candidate("b", "peak tram schedule and fares", &ts),
		}
	}

	order := func(tau time.Duration) []string {
		s := newTestScorer(t, WithFreshnessTau(tau))
		scored, err := s.Score(context.Background(), "peak tram schedule", build())
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		locators := make([]string, len(scored))
		for i, sc := range scored {
			locators[i] = sc.Item.Locator
		}
		return locators
	}

	slow := order(30 * 24 * time.Hour)
	fast := order(6 * time.Hour)
	if len(slow) != len(fast) {
		t.Fatalf("candidate count changed: %d vs %d", len(slow), len(fast))
	}
	for i := range slow {
		if slow[i] != fast[i] {
			t.Fatalf("decay constant reordered equal-age candidates: %v vs %v", slow, fast)
		}
	}
}

func TestFreshnessNeutralWithoutTimestamp(t *testing.T) {
	s := newTestScorer(t)
	got := s.freshness(evidence.Item{}, time.Now())
	if got != s.neutralFreshness {
		t.Fatalf("timestampless item should get neutral freshness, got %f", got)
	}
}

func TestFreshnessClampsFutureTimestamps(t *testing.T) {
	s := newTestScorer(t)
	now := time.Now()
	future := now.Add(time.Hour)
	if got := s.freshness(evidence.Item{Timestamp: &future}, now); got != 1 {
		t.Fatalf("future timestamp should clamp to 1, got %f", got)
	}
}

func TestCredibilityResolution(t *testing.T) {
	s := newTestScorer(t, WithCredibilityTable(map[string]float64{
		"gov.hk": 0.95,
		"web":    0.6,
	}))

	if got := s.credibilityScore(evidence.Item{Locator: "https://www.gov.hk/weather", Source: evidence.SourceWeb}); got != 0.95 {
		t.Fatalf("domain prior not used: %f", got)
	}
	if got := s.credibilityScore(evidence.Item{Locator: "https://blog.example.com/post", Source: evidence.SourceWeb}); got != 0.6 {
		t.Fatalf("source prior not used: %f", got)
	}
	if got := s.credibilityScore(evidence.Item{Source: evidence.SourceVision, CredibilityPrior: 0.7}); got != 0.7 {
		t.Fatalf("item prior not used: %f", got)
	}
	if got := s.credibilityScore(evidence.Item{Source: "mystery"}); got != s.defaultCredibility {
		t.Fatalf("default prior not used: %f", got)
	}
}

func TestScoreDeduplicatesNearIdenticalContent(t *testing.T) {
	s := newTestScorer(t, WithDedupThreshold(0.8))
	cands := []evidence.Scored{
		candidate("a", "the ferry departs central pier nine every thirty minutes", nil),
		candidate("b", "the ferry departs central pier nine every thirty minutes daily", nil),
		candidate("c", "typhoon signal eight hoisted this morning", nil),
	}

	scored, err := s.Score(context.Background(), "ferry schedule", cands)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected duplicate removed, got %d candidates", len(scored))
	}
}

func TestScoreIsIdempotentOnDeduplicatedSet(t *testing.T) {
	s := newTestScorer(t)
	cands := []evidence.Scored{
		candidate("a", "ferry schedule information", nil),
		candidate("b", "typhoon warning details", nil),
	}

	once, err := s.Score(context.Background(), "ferry", cands)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	twice, err := s.Score(context.Background(), "ferry", once)
	if err != nil {
		t.Fatalf("Score again: %v", err)
	}
	if len(once) != len(twice) {
		t.Fatalf("second scoring changed the set: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Item.Locator != twice[i].Item.Locator {
			t.Fatalf("order changed on rescore at %d", i)
		}
	}
}

func TestScoreEmptyInput(t *testing.T) {
	s := newTestScorer(t)
	scored, err := s.Score(context.Background(), "q", nil)
	if err != nil || scored != nil {
		t.Fatalf("empty input should be a no-op, got %v, %v", scored, err)
	}
}
