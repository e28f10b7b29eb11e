package inmemory

import (
	"context"
	"testing"

	"github.com/sweetpotato0/queryweave/retrieval"
)

// hashEmbedder maps terms to fixed axes so cosine similarity is predictable.
type hashEmbedder struct {
	axes map[string]int
	dim  int
}

func newHashEmbedder(terms ...string) *hashEmbedder {
	axes := make(map[string]int, len(terms))
	for i, term := range terms {
		axes[term] = i
	}
	return &hashEmbedder{axes: axes, dim: len(terms)}
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range tokenize(text) {
		if idx, ok := e.axes[tok]; ok {
			vec[idx]++
		}
	}
	return vec, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int { return e.dim }

func seedDocs() []retrieval.Document {
	return []retrieval.Document{
		{ID: "doc-hiking", Content: "Victoria Peak hiking trail conditions and difficulty"},
		{ID: "doc-ferry", Content: "Star Ferry schedule between Central and Tsim Sha Tsui"},
		{ID: "doc-weather", Content: "Hong Kong weather patterns during typhoon season"},
	}
}

func TestSparseSearchRanksByTermRelevance(t *testing.T) {
	ix := New(nil)
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ids, err := ix.SearchSparse(context.Background(), "ferry schedule", 10)
	if err != nil {
		t.Fatalf("SearchSparse: %v", err)
	}
	if len(ids) == 0 || ids[0] != "doc-ferry" {
		t.Fatalf("expected doc-ferry first, got %v", ids)
	}
}

func TestSparseSearchLimitsResults(t *testing.T) {
	ix := New(nil)
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ids, err := ix.SearchSparse(context.Background(), "hong kong victoria ferry weather", 2)
	if err != nil {
		t.Fatalf("SearchSparse: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 results, got %v", ids)
	}
}

func TestDenseSearchUsesCosineSimilarity(t *testing.T) {
	emb := newHashEmbedder("hiking", "ferry", "weather", "typhoon")
	ix := New(emb)
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ids, err := ix.SearchDense(context.Background(), "typhoon weather", 1)
	if err != nil {
		t.Fatalf("SearchDense: %v", err)
	}
	if len(ids) != 1 || ids[0] != "doc-weather" {
		t.Fatalf("expected doc-weather, got %v", ids)
	}
}

func TestDenseSearchWithoutEmbedderReturnsNothing(t *testing.T) {
	ix := New(nil)
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ids, err := ix.SearchDense(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("SearchDense: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected no dense results, got %v", ids)
	}
}

func TestFetchReturnsDocument(t *testing.T) {
	ix := New(nil)
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	doc, err := ix.Fetch(context.Background(), "doc-hiking")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.ID != "doc-hiking" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if _, err := ix.Fetch(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestReAddReplacesDocument(t *testing.T) {
	ix := New(nil)
	ctx := context.Background()
	if err := ix.Add(ctx, retrieval.Document{ID: "d1", Content: "old topic about trains"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix.Add(ctx, retrieval.Document{ID: "d1", Content: "fresh topic about museums"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if got := ix.Count(); got != 1 {
		t.Fatalf("expected 1 document, got %d", got)
	}
	ids, err := ix.SearchSparse(ctx, "trains", 5)
	if err != nil {
		t.Fatalf("SearchSparse: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("stale terms still indexed: %v", ids)
	}
}

func TestRetrieverIntegration(t *testing.T) {
	ix := New(newHashEmbedder("ferry", "schedule", "weather"))
	if err := ix.Add(context.Background(), seedDocs()...); err != nil {
		t.Fatalf("Add: %v", err)
	}

	r, err := retrieval.New(ix, ix, ix)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	candidates, err := r.Retrieve(context.Background(), "ferry schedule", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(candidates) == 0 || candidates[0].ID != "doc-ferry" {
		t.Fatalf("expected doc-ferry first, got %+v", candidates)
	}
	if candidates[0].Document.Content == "" {
		t.Fatal("expected resolved document content")
	}
}
