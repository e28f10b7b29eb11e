package evidence

import (
	"testing"
	"time"
)

func TestSourceKindValid(t *testing.T) {
	for _, kind := range Known() {
		if !kind.Valid() {
			t.Errorf("known kind %s reported invalid", kind)
		}
	}
	if SourceKind("carrier_pigeon").Valid() {
		t.Error("unknown kind reported valid")
	}
}

func TestKnownOrderStable(t *testing.T) {
	first := Known()
	if first[0] != SourceLocalKB || first[1] != SourceWeb {
		t.Fatalf("routing order changed: %v", first)
	}
}

func TestCloneIsDeep(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	score := 0.5
	item := Item{
		Source:    SourceWeb,
		Content:   "c",
		Timestamp: &ts,
		RawScore:  &score,
		Metadata:  map[string]any{"k": "v"},
	}

	cloned := item.Clone()
	*cloned.Timestamp = cloned.Timestamp.Add(time.Hour)
	*cloned.RawScore = 0.9
	cloned.Metadata["k"] = "changed"

	if !item.Timestamp.Equal(ts) {
		t.Error("timestamp aliased")
	}
	if *item.RawScore != 0.5 {
		t.Error("raw score aliased")
	}
	if item.Metadata["k"] != "v" {
		t.Error("metadata aliased")
	}
}

func TestAge(t *testing.T) {
	now := time.Now()
	past := now.Add(-2 * time.Hour)

	age, ok := Item{Timestamp: &past}.Age(now)
	if !ok || age != 2*time.Hour {
		t.Fatalf("Age = %v, %v", age, ok)
	}
	if _, ok := (Item{}).Age(now); ok {
		t.Fatal("timestampless item should report no age")
	}
}
