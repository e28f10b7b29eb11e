package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/queryweave/evidence"
)

// Request carries one sub-query to an adapter. The adapter only sees the
// optimized query text and its own parameters; plan bookkeeping stays in the
// pipeline.
type Request struct {
	ID          string         `json:"id"`
	Query       string         `json:"query"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Adapter is the uniform interface over every evidence source: local
// retrieval, web search and the domain tools. An adapter returns zero or more
// evidence items, or a typed *Error. Adapters must be safe for concurrent use.
type Adapter interface {
	// Kind reports which source this adapter serves.
	Kind() evidence.SourceKind

	// Call executes the request and returns the evidence it produced.
	Call(ctx context.Context, req Request) ([]evidence.Item, error)
}

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	ErrTimeout       ErrorKind = "timeout"
	ErrNotFound      ErrorKind = "not_found"
	ErrUpstream      ErrorKind = "upstream_error"
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
)

// Error is the typed failure an adapter reports. A single adapter failure is
// isolated by the orchestrator and never aborts sibling fetches.
type Error struct {
	Source evidence.SourceKind
	Kind   ErrorKind
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Cause)
	}
	return fmt.Sprintf("source %s: %s", e.Source, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause as a typed adapter failure.
func NewError(src evidence.SourceKind, kind ErrorKind, cause error) *Error {
	return &Error{Source: src, Kind: kind, Cause: cause}
}

// AsError extracts a typed adapter error from err if present.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Registry manages the set of configured adapters.
// All operations are thread-safe using RWMutex protection.
type Registry struct {
	mu       sync.RWMutex
	adapters map[evidence.SourceKind]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[evidence.SourceKind]Adapter),
	}
}

// Register adds an adapter. Registering a second adapter for the same source
// kind is an error; sources disabled by configuration are simply never
// registered, which is how upstream exclusion works.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter cannot be nil")
	}
	kind := a.Kind()
	if !kind.Valid() {
		return fmt.Errorf("unknown source kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("adapter for source %s already registered", kind)
	}
	r.adapters[kind] = a
	return nil
}

// Get returns the adapter for the given source kind.
func (r *Registry) Get(kind evidence.SourceKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Available returns the sorted set of source kinds that have an adapter.
func (r *Registry) Available() []evidence.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]evidence.SourceKind, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
