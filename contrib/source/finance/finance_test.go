package finance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/sweetpotato0/queryweave/source"
)

func newQuoteServer(t *testing.T, rows map[string]string) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("s")
		row, ok := rows[symbol]
		if !ok {
			row = fmt.Sprintf("%s,N/D,N/D,N/D,N/D,N/D,N/D,N/D", strings.ToUpper(symbol))
		}
		fmt.Fprintf(w, "Symbol,Date,Time,Open,High,Low,Close,Volume\n%s\n", row)
	}))
	t.Cleanup(server.Close)
	return New(WithEndpoint(server.URL))
}

func TestCallSingleQuote(t *testing.T) {
	adapter := newQuoteServer(t, map[string]string{
		"aapl.us": "AAPL.US,2026-08-28,22:00:00,230.10,234.50,229.00,233.20,41200000",
	})

	items, err := adapter.Call(context.Background(), source.Request{
		Query:  "What is Apple trading at?",
		Params: map[string]any{"ticker": "AAPL.US"},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Locator != "AAPL.US" {
		t.Fatalf("unexpected locator %q", items[0].Locator)
	}
	for _, want := range []string{"close 233.20", "open 230.10", "+3.10"} {
		if !strings.Contains(items[0].Content, want) {
			t.Fatalf("quote summary missing %q: %q", want, items[0].Content)
		}
	}
	if items[0].Timestamp == nil {
		t.Fatal("expected quote timestamp")
	}
}

func TestCallComparesMultipleTickers(t *testing.T) {
	adapter := newQuoteServer(t, map[string]string{
		"aapl": "AAPL,2026-08-28,22:00:00,230.10,234.50,229.00,233.20,41200000",
		"msft": "MSFT,2026-08-28,22:00:00,512.00,520.00,510.00,518.40,18800000",
	})

	items, err := adapter.Call(context.Background(), source.Request{
		Query: "Compare AAPL and MSFT performance",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Locator != "AAPL" || items[1].Locator != "MSFT" {
		t.Fatalf("unexpected tickers: %s, %s", items[0].Locator, items[1].Locator)
	}
}

func TestCallUnknownTickerIsNotFound(t *testing.T) {
	adapter := newQuoteServer(t, nil)

	_, err := adapter.Call(context.Background(), source.Request{
		Params: map[string]any{"ticker": "ZZZZ"},
	})
	typed, ok := source.AsError(err)
	if !ok || typed.Kind != source.ErrNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCallNoTickerInQuery(t *testing.T) {
	adapter := newQuoteServer(t, nil)

	_, err := adapter.Call(context.Background(), source.Request{Query: "how are markets doing"})
	typed, ok := source.AsError(err)
	if !ok || typed.Kind != source.ErrNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestExtractTickers(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Compare AAPL and MSFT", []string{"AAPL", "MSFT"}},
		{"price of 0700.HK today", []string{"0700.HK"}},
		{"what happened in 2026", nil},
		{"THE price OF tesla", nil},
	}
	for _, tc := range cases {
		if got := ExtractTickers(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractTickers(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
