// Package inmemory provides an embedded knowledge-base index: an embedder
// backed dense side and a BM25 sparse side over the same document set. It
// serves small corpora and tests; larger deployments point the retriever at
// external index services instead.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/queryweave/retrieval"
	"github.com/sweetpotato0/queryweave/vector"
)

// Index implements retrieval.DenseIndex, retrieval.SparseIndex and
// retrieval.DocumentStore over an in-process document set.
type Index struct {
	embedder vector.Embedder

	mu      sync.RWMutex
	docs    map[string]retrieval.Document
	vectors map[string][]float32
	keyword *bm25Index
}

// New creates an index. The embedder may be nil, which disables the dense
// side; sparse search still works.
func New(embedder vector.Embedder) *Index {
	return &Index{
		embedder: embedder,
		docs:     make(map[string]retrieval.Document),
		vectors:  make(map[string][]float32),
		keyword:  newBM25(),
	}
}

// Add ingests documents, embedding them when an embedder is configured.
// Re-adding an existing ID replaces its content.
func (ix *Index) Add(ctx context.Context, docs ...retrieval.Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return errors.New("document ID is required")
		}

		var vec []float32
		if ix.embedder != nil {
			embedded, err := ix.embedder.Embed(ctx, doc.Content)
			if err != nil {
				return fmt.Errorf("embed document %s: %w", doc.ID, err)
			}
			vec = vector.Normalize(embedded)
		}

		ix.mu.Lock()
		if _, exists := ix.docs[doc.ID]; exists {
			ix.keyword.remove(doc.ID)
		}
		ix.docs[doc.ID] = doc
		if vec != nil {
			ix.vectors[doc.ID] = vec
		}
		ix.keyword.add(doc.ID, doc.Content)
		ix.mu.Unlock()
	}
	return nil
}

// SearchDense implements retrieval.DenseIndex with cosine similarity over the
// embedded documents. Ties are broken by document ID for determinism.
func (ix *Index) SearchDense(ctx context.Context, text string, k int) ([]string, error) {
	if ix.embedder == nil {
		return nil, nil
	}
	queryVec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = vector.Normalize(queryVec)

	type hit struct {
		id    string
		score float32
	}

	ix.mu.RLock()
	hits := make([]hit, 0, len(ix.vectors))
	for id, vec := range ix.vectors {
		hits = append(hits, hit{id: id, score: vector.CosineSimilarity(queryVec, vec)})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// SearchSparse implements retrieval.SparseIndex with BM25.
func (ix *Index) SearchSparse(ctx context.Context, text string, k int) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.keyword.search(text, k), nil
}

// Fetch implements retrieval.DocumentStore.
func (ix *Index) Fetch(ctx context.Context, id string) (retrieval.Document, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.docs[id]
	if !ok {
		return retrieval.Document{}, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Clear removes all indexed state.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = make(map[string]retrieval.Document)
	ix.vectors = make(map[string][]float32)
	ix.keyword = newBM25()
}

// --- BM25 implementation ---

type bm25Index struct {
	docFreq     map[string]int
	postings    map[string]map[string]int
	docLength   map[string]int
	totalLength int
	docCount    int
	k1          float64
	b           float64
}

var bm25Regex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func newBM25() *bm25Index {
	return &bm25Index{
		docFreq:   make(map[string]int),
		postings:  make(map[string]map[string]int),
		docLength: make(map[string]int),
		k1:        1.6,
		b:         0.75,
	}
}

func (b *bm25Index) add(id, content string) {
	terms := tokenize(content)
	if len(terms) == 0 {
		return
	}
	b.docCount++
	b.docLength[id] = len(terms)
	b.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := b.postings[term]; !ok {
			b.postings[term] = make(map[string]int)
		}
		b.postings[term][id]++
		if _, exists := seen[term]; !exists {
			b.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

func (b *bm25Index) remove(id string) {
	length, ok := b.docLength[id]
	if !ok {
		return
	}
	b.docCount--
	b.totalLength -= length
	delete(b.docLength, id)
	for term, postings := range b.postings {
		if _, hit := postings[id]; hit {
			delete(postings, id)
			b.docFreq[term]--
			if b.docFreq[term] <= 0 {
				delete(b.docFreq, term)
				delete(b.postings, term)
			}
		}
	}
}

func (b *bm25Index) search(query string, limit int) []string {
	terms := unique(tokenize(query))
	if len(terms) == 0 || b.docCount == 0 {
		return nil
	}

	avgLen := float64(b.totalLength) / float64(b.docCount)
	scores := make(map[string]float64)
	for _, term := range terms {
		postings := b.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := b.docFreq[term]
		idf := math.Log((float64(b.docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for id, tf := range postings {
			docLen := float64(b.docLength[id])
			numerator := float64(tf) * (b.k1 + 1)
			denominator := float64(tf) + b.k1*(1-b.b+b.b*(docLen/avgLen))
			scores[id] += idf * (numerator / denominator)
		}
	}

	type hit struct {
		id    string
		score float64
	}
	hits := make([]hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, hit{id: id, score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

func tokenize(content string) []string {
	return bm25Regex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
