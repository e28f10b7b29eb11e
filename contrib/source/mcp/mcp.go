// Package mcp exposes tools of a remote MCP server as evidence sources. Each
// adapter binds one remote tool to one source kind; a deployment that keeps
// its transit data behind an MCP server registers the binding instead of the
// built-in adapter.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/mcp"
	"github.com/sweetpotato0/queryweave/source"
)

// DefaultCredibility is the prior for MCP-served evidence when the binding
// does not set one.
const DefaultCredibility = 0.8

// Binding connects a remote MCP tool to an evidence source kind.
type Binding struct {
	// Tool is the remote tool name as listed by the server.
	Tool string
	// Kind is the evidence source the tool serves.
	Kind evidence.SourceKind
	// Credibility overrides DefaultCredibility when positive.
	Credibility float64
	// QueryArg names the tool argument that receives the sub-query text.
	// Defaults to "query".
	QueryArg string
}

// Adapter calls one remote MCP tool for its evidence source.
type Adapter struct {
	client  *mcp.Client
	binding Binding
	now     func() time.Time
}

// New creates an adapter for a single tool binding.
func New(client *mcp.Client, binding Binding) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("mcp: client is required")
	}
	if strings.TrimSpace(binding.Tool) == "" {
		return nil, fmt.Errorf("mcp: tool name is required")
	}
	if !binding.Kind.Valid() {
		return nil, fmt.Errorf("mcp: unknown source kind %q", binding.Kind)
	}
	if binding.QueryArg == "" {
		binding.QueryArg = "query"
	}
	if binding.Credibility <= 0 {
		binding.Credibility = DefaultCredibility
	}
	return &Adapter{client: client, binding: binding, now: time.Now}, nil
}

// Adapters builds one adapter per binding against a shared client, verifying
// that every bound tool exists on the server.
func Adapters(ctx context.Context, client *mcp.Client, bindings ...Binding) ([]*Adapter, error) {
	tools, err := client.ListAllTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}
	known := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t != nil {
			known[t.Name] = struct{}{}
		}
	}

	out := make([]*Adapter, 0, len(bindings))
	for _, binding := range bindings {
		if _, ok := known[binding.Tool]; !ok {
			return nil, fmt.Errorf("mcp: server does not expose tool %q", binding.Tool)
		}
		adapter, err := New(client, binding)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}

func (a *Adapter) Kind() evidence.SourceKind { return a.binding.Kind }

// Call forwards the sub-query to the remote tool. Request params are passed
// through as tool arguments alongside the query text.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	args := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		args[k] = v
	}
	args[a.binding.QueryArg] = req.Query

	text, err := a.client.CallTool(ctx, a.binding.Tool, args)
	if err != nil {
		return nil, a.classify(err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	now := a.now().UTC()
	return []evidence.Item{{
		Source:           a.binding.Kind,
		Content:          text,
		Locator:          "mcp:" + a.binding.Tool,
		Timestamp:        &now,
		CredibilityPrior: a.binding.Credibility,
	}}, nil
}

func (a *Adapter) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return source.NewError(a.binding.Kind, source.ErrTimeout, err)
	}
	return source.NewError(a.binding.Kind, source.ErrUpstream, err)
}
