package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultRRFConstant is the k in 1/(k + rank). Larger values flatten the
// contribution curve and tolerate more low-rank disagreement between lists.
const DefaultRRFConstant = 60

// DenseIndex is the vector-similarity side of the local knowledge base.
// The index itself is an external service; the retriever only consumes its
// ranked doc IDs.
type DenseIndex interface {
	SearchDense(ctx context.Context, text string, k int) ([]string, error)
}

// SparseIndex is the lexical (BM25-style) side of the local knowledge base.
type SparseIndex interface {
	SearchSparse(ctx context.Context, text string, k int) ([]string, error)
}

// DocumentStore resolves doc IDs returned by the indexes into content.
type DocumentStore interface {
	Fetch(ctx context.Context, id string) (Document, error)
}

// Document is a knowledge-base entry as stored by the external index service.
type Document struct {
	ID        string
	Content   string
	UpdatedAt *time.Time
	Metadata  map[string]any
}

// Candidate is one fused retrieval result, ordered by descending RRF score.
type Candidate struct {
	ID        string
	RRFScore  float64
	FusedRank int // 1-based position after fusion
	Document  Document
}

// Option customises the retriever.
type Option func(*Retriever)

// WithRRFConstant overrides the RRF k constant.
func WithRRFConstant(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.rrfK = k
		}
	}
}

// WithIndexTopK sets how many candidates are pulled from each index before fusion.
func WithIndexTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.indexTopK = k
		}
	}
}

// Retriever queries the dense and sparse indexes independently and fuses their
// rankings with Reciprocal Rank Fusion. Fusion is deterministic: identical
// index rankings always produce the identical fused order, with ties broken by
// the earliest rank at which a candidate appears in either list, then by ID.
type Retriever struct {
	dense     DenseIndex
	sparse    SparseIndex
	docs      DocumentStore
	rrfK      int
	indexTopK int
}

// New creates a hybrid retriever over the two index services.
func New(dense DenseIndex, sparse SparseIndex, docs DocumentStore, opts ...Option) (*Retriever, error) {
	if dense == nil || sparse == nil {
		return nil, fmt.Errorf("dense and sparse indexes are required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	r := &Retriever{
		dense:     dense,
		sparse:    sparse,
		docs:      docs,
		rrfK:      DefaultRRFConstant,
		indexTopK: 50,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve runs the query against both indexes, fuses the rankings and returns
// at most topK candidates with their documents resolved. Candidates whose
// documents can no longer be fetched are skipped rather than failing the
// retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Candidate, error) {
	if topK <= 0 {
		topK = r.indexTopK
	}

	denseIDs, err := r.dense.SearchDense(ctx, query, r.indexTopK)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	sparseIDs, err := r.sparse.SearchSparse(ctx, query, r.indexTopK)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	fused := Fuse(r.rrfK, denseIDs, sparseIDs)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	out := make([]Candidate, 0, len(fused))
	for _, cand := range fused {
		doc, err := r.docs.Fetch(ctx, cand.ID)
		if err != nil {
			continue
		}
		cand.Document = doc
		cand.FusedRank = len(out) + 1
		out = append(out, cand)
	}
	return out, nil
}

// Fuse merges ranked ID lists with Reciprocal Rank Fusion. Each list
// contributes 1/(k + rank) for every candidate it contains, rank being
// 1-based; candidates absent from a list contribute nothing for it.
func Fuse(k int, lists ...[]string) []Candidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fusion struct {
		score     float64
		earliest  int // best (lowest) rank across all lists, for tie-breaks
		firstSeen int
	}
	scores := make(map[string]*fusion)

	for _, list := range lists {
		for idx, id := range list {
			rank := idx + 1
			f, ok := scores[id]
			if !ok {
				f = &fusion{earliest: rank}
				scores[id] = f
			} else if rank < f.earliest {
				f.earliest = rank
			}
			f.score += 1.0 / float64(k+rank)
		}
	}

	out := make([]Candidate, 0, len(scores))
	for id, f := range scores {
		out = append(out, Candidate{ID: id, RRFScore: f.score, FusedRank: f.earliest})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].FusedRank != out[j].FusedRank {
			return out[i].FusedRank < out[j].FusedRank
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].FusedRank = i + 1
	}
	return out
}
