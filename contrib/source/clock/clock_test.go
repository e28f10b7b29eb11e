package clock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func TestCallKnownLocation(t *testing.T) {
	adapter := New(WithNow(fixedNow))

	items, err := adapter.Call(context.Background(), source.Request{Query: "What time is it in Tokyo?"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Locator != "Asia/Tokyo" {
		t.Fatalf("unexpected timezone %q", items[0].Locator)
	}
	// 12:00 UTC is 21:00 in Tokyo.
	if !strings.Contains(items[0].Content, "21:00:00") {
		t.Fatalf("unexpected time in %q", items[0].Content)
	}
	if items[0].Source != evidence.SourceTime {
		t.Fatalf("wrong source %s", items[0].Source)
	}
}

func TestCallChineseLocationName(t *testing.T) {
	adapter := New(WithNow(fixedNow))

	items, err := adapter.Call(context.Background(), source.Request{Query: "現在北京幾點"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if items[0].Locator != "Asia/Shanghai" {
		t.Fatalf("unexpected timezone %q", items[0].Locator)
	}
}

func TestCallDefaultsToHongKong(t *testing.T) {
	adapter := New(WithNow(fixedNow))

	items, err := adapter.Call(context.Background(), source.Request{Query: "what time is it"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if items[0].Locator != "Asia/Hong_Kong" {
		t.Fatalf("unexpected timezone %q", items[0].Locator)
	}
}

func TestCallPrefersLocationParam(t *testing.T) {
	adapter := New(WithNow(fixedNow))

	items, err := adapter.Call(context.Background(), source.Request{
		Query:  "time check",
		Params: map[string]any{"location": "london"},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if items[0].Locator != "Europe/London" {
		t.Fatalf("unexpected timezone %q", items[0].Locator)
	}
}

func TestResolveTimezonePrefersLongestMatch(t *testing.T) {
	name, tz := resolveTimezone("flight from new york to usa")
	if name != "new york" || tz != "America/New_York" {
		t.Fatalf("resolveTimezone = %q, %q", name, tz)
	}
}
