// Package localkb exposes the hybrid knowledge-base retriever as an evidence
// source. Fused candidates become evidence items carrying their RRF score, so
// downstream reranking can weigh them against other textual sources.
package localkb

import (
	"context"
	"strings"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/retrieval"
	"github.com/sweetpotato0/queryweave/source"
)

const defaultTopK = 8

// DefaultCredibility is the prior for curated knowledge-base entries. Entries
// can override it through a "credibility" metadata field.
const DefaultCredibility = 0.9

// Adapter bridges a retrieval.Retriever into the source.Adapter contract.
type Adapter struct {
	retriever *retrieval.Retriever
	topK      int
}

// Option customises the adapter.
type Option func(*Adapter)

// WithTopK sets how many fused candidates a sub-query returns.
func WithTopK(k int) Option {
	return func(a *Adapter) {
		if k > 0 {
			a.topK = k
		}
	}
}

// New wraps a hybrid retriever as the local_kb source.
func New(retriever *retrieval.Retriever, opts ...Option) *Adapter {
	a := &Adapter{retriever: retriever, topK: defaultTopK}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceLocalKB }

// Call runs the hybrid retrieval for the sub-query. An empty result set is a
// successful fetch with no evidence, not a failure.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil
	}

	candidates, err := a.retriever.Retrieve(ctx, query, a.topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, source.NewError(evidence.SourceLocalKB, source.ErrTimeout, err)
		}
		return nil, source.NewError(evidence.SourceLocalKB, source.ErrUpstream, err)
	}

	items := make([]evidence.Item, 0, len(candidates))
	for _, cand := range candidates {
		score := cand.RRFScore
		items = append(items, evidence.Item{
			Source:           evidence.SourceLocalKB,
			Content:          cand.Document.Content,
			Locator:          cand.ID,
			Timestamp:        cand.Document.UpdatedAt,
			CredibilityPrior: credibility(cand.Document),
			RawScore:         &score,
			Metadata:         cand.Document.Metadata,
		})
	}
	return items, nil
}

func credibility(doc retrieval.Document) float64 {
	if doc.Metadata != nil {
		if v, ok := doc.Metadata["credibility"].(float64); ok && v > 0 && v <= 1 {
			return v
		}
	}
	return DefaultCredibility
}
