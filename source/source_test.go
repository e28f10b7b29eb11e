package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sweetpotato0/queryweave/evidence"
)

type nopAdapter struct {
	kind evidence.SourceKind
}

func (a nopAdapter) Kind() evidence.SourceKind { return a.kind }

func (a nopAdapter) Call(context.Context, Request) ([]evidence.Item, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nopAdapter{kind: evidence.SourceWeather}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Get(evidence.SourceWeather); !ok {
		t.Fatal("registered adapter not found")
	}
	if _, ok := r.Get(evidence.SourceFinance); ok {
		t.Fatal("unregistered adapter found")
	}
}

func TestRegistryRejectsDuplicatesAndUnknownKinds(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nopAdapter{kind: evidence.SourceWeb}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(nopAdapter{kind: evidence.SourceWeb}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := r.Register(nopAdapter{kind: "bogus"}); err == nil {
		t.Fatal("unknown kind should fail")
	}
	if err := r.Register(nil); err == nil {
		t.Fatal("nil adapter should fail")
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	r := NewRegistry()
	for _, kind := range []evidence.SourceKind{evidence.SourceWeb, evidence.SourceFinance, evidence.SourceLocalKB} {
		if err := r.Register(nopAdapter{kind: kind}); err != nil {
			t.Fatalf("Register %s: %v", kind, err)
		}
	}
	kinds := r.Available()
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Fatalf("Available not sorted: %v", kinds)
		}
	}
	if r.Count() != 3 {
		t.Fatalf("Count = %d", r.Count())
	}
}

func TestTypedErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(evidence.SourceFinance, ErrQuotaExceeded, cause)

	typed, ok := AsError(fmt.Errorf("fetch failed: %w", err))
	if !ok {
		t.Fatal("AsError failed through wrapping")
	}
	if typed.Kind != ErrQuotaExceeded || typed.Source != evidence.SourceFinance {
		t.Fatalf("wrong classification: %+v", typed)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not unwrappable")
	}
}

func TestStatusError(t *testing.T) {
	if err := StatusError(evidence.SourceWeb, http.StatusOK); err != nil {
		t.Fatalf("2xx should be nil, got %v", err)
	}
	cases := map[int]ErrorKind{
		http.StatusNotFound:        ErrNotFound,
		http.StatusTooManyRequests: ErrQuotaExceeded,
		http.StatusPaymentRequired: ErrQuotaExceeded,
		http.StatusBadGateway:      ErrUpstream,
	}
	for status, want := range cases {
		typed, ok := AsError(StatusError(evidence.SourceWeb, status))
		if !ok || typed.Kind != want {
			t.Errorf("status %d classified as %v, want %s", status, typed, want)
		}
	}
}

func TestTransportError(t *testing.T) {
	typed, _ := AsError(TransportError(evidence.SourceWeb, context.DeadlineExceeded))
	if typed.Kind != ErrTimeout {
		t.Fatalf("deadline should be timeout, got %s", typed.Kind)
	}
	typed, _ = AsError(TransportError(evidence.SourceWeb, errors.New("refused")))
	if typed.Kind != ErrUpstream {
		t.Fatalf("generic failure should be upstream, got %s", typed.Kind)
	}
}

func TestParam(t *testing.T) {
	params := map[string]any{"location": "  Hong Kong ", "count": 3}
	if got := Param(params, "location"); got != "Hong Kong" {
		t.Fatalf("Param = %q", got)
	}
	if got := Param(params, "count"); got != "" {
		t.Fatalf("non-string param should be empty, got %q", got)
	}
	if got := Param(nil, "x"); got != "" {
		t.Fatalf("nil params should be empty, got %q", got)
	}
}
