// Package lexical provides an offline cross-encoder based on token overlap.
// It exists for deployments without a rerank API and for tests; scores are
// coarse but deterministic.
package lexical

import (
	"context"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

// Encoder implements rerank.CrossEncoder with Jaccard token overlap.
type Encoder struct{}

// New creates a lexical cross-encoder.
func New() *Encoder { return &Encoder{} }

// ScorePairs scores each text by its token overlap with the query.
func (e *Encoder) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	queryTokens := tokenize(query)
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = jaccard(queryTokens, tokenize(text))
	}
	return scores, nil
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
