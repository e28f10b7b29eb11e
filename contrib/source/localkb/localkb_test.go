package localkb

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/retrieval"
	"github.com/sweetpotato0/queryweave/source"
)

type stubIndex struct {
	denseIDs  []string
	sparseIDs []string
	docs      map[string]retrieval.Document
}

func (s *stubIndex) SearchDense(context.Context, string, int) ([]string, error) {
	return s.denseIDs, nil
}

func (s *stubIndex) SearchSparse(context.Context, string, int) ([]string, error) {
	return s.sparseIDs, nil
}

func (s *stubIndex) Fetch(_ context.Context, id string) (retrieval.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return retrieval.Document{}, context.Canceled
	}
	return doc, nil
}

func newStubRetriever(t *testing.T, ix *stubIndex) *retrieval.Retriever {
	t.Helper()
	r, err := retrieval.New(ix, ix, ix)
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}
	return r
}

func TestCallReturnsFusedEvidence(t *testing.T) {
	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ix := &stubIndex{
		denseIDs:  []string{"d1", "d2"},
		sparseIDs: []string{"d2", "d3"},
		docs: map[string]retrieval.Document{
			"d1": {ID: "d1", Content: "ferry schedule"},
			"d2": {ID: "d2", Content: "typhoon warnings", UpdatedAt: &updated},
			"d3": {ID: "d3", Content: "trail conditions"},
		},
	}
	adapter := New(newStubRetriever(t, ix))

	items, err := adapter.Call(context.Background(), source.Request{ID: "q1", Query: "typhoon"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	// d2 appears in both index rankings, so fusion puts it first.
	if items[0].Locator != "d2" {
		t.Fatalf("expected d2 first, got %s", items[0].Locator)
	}
	if items[0].Source != evidence.SourceLocalKB {
		t.Fatalf("wrong source kind %s", items[0].Source)
	}
	if items[0].RawScore == nil || *items[0].RawScore <= 0 {
		t.Fatal("expected RRF score on item")
	}
	if items[0].Timestamp == nil || !items[0].Timestamp.Equal(updated) {
		t.Fatal("document timestamp not carried over")
	}
	if items[0].CredibilityPrior != DefaultCredibility {
		t.Fatalf("unexpected credibility %f", items[0].CredibilityPrior)
	}
}

func TestCallRespectsMetadataCredibility(t *testing.T) {
	ix := &stubIndex{
		denseIDs: []string{"d1"},
		docs: map[string]retrieval.Document{
			"d1": {ID: "d1", Content: "draft notes", Metadata: map[string]any{"credibility": 0.4}},
		},
	}
	adapter := New(newStubRetriever(t, ix))

	items, err := adapter.Call(context.Background(), source.Request{Query: "notes"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 1 || items[0].CredibilityPrior != 0.4 {
		t.Fatalf("metadata credibility not applied: %+v", items)
	}
}

func TestCallEmptyQueryYieldsNothing(t *testing.T) {
	adapter := New(newStubRetriever(t, &stubIndex{}))
	items, err := adapter.Call(context.Background(), source.Request{Query: "   "})
	if err != nil || items != nil {
		t.Fatalf("expected empty success, got items=%v err=%v", items, err)
	}
}

func TestWithTopKLimitsResults(t *testing.T) {
	ix := &stubIndex{
		denseIDs: []string{"d1", "d2", "d3"},
		docs: map[string]retrieval.Document{
			"d1": {ID: "d1", Content: "a"},
			"d2": {ID: "d2", Content: "b"},
			"d3": {ID: "d3", Content: "c"},
		},
	}
	adapter := New(newStubRetriever(t, ix), WithTopK(2))

	items, err := adapter.Call(context.Background(), source.Request{Query: "q"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}
