// Package web is a Tavily-backed web search adapter. Result snippets are
// stripped of HTML before they enter the evidence pool.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultMaxResults = 5
	defaultTimeout    = 30 * time.Second
)

// DefaultCredibility is the prior for open-web results.
const DefaultCredibility = 0.6

// Adapter implements the web evidence source over the Tavily search API.
type Adapter struct {
	apiKey     string
	endpoint   string
	maxResults int
	depth      string
	httpClient *http.Client
	now        func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// WithMaxResults caps how many results a search returns.
func WithMaxResults(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

// WithSearchDepth selects the Tavily search depth ("basic" or "advanced").
func WithSearchDepth(depth string) Option {
	return func(a *Adapter) { a.depth = depth }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New creates the web adapter. The API key is required; construct the adapter
// only when web search is enabled.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("web: API key is required")
	}
	a := &Adapter{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		maxResults: defaultMaxResults,
		depth:      "basic",
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceWeb }

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Call searches the web for the sub-query.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:        a.apiKey,
		Query:         req.Query,
		MaxResults:    a.maxResults,
		SearchDepth:   a.depth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, source.NewError(evidence.SourceWeb, source.ErrUpstream, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, source.NewError(evidence.SourceWeb, source.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, source.TransportError(evidence.SourceWeb, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceWeb, resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, source.NewError(evidence.SourceWeb, source.ErrUpstream, fmt.Errorf("decode response: %w", err))
	}

	now := a.now().UTC()
	items := make([]evidence.Item, 0, len(decoded.Results)+1)
	if answer := strings.TrimSpace(decoded.Answer); answer != "" {
		items = append(items, evidence.Item{
			Source:           evidence.SourceWeb,
			Content:          answer,
			Locator:          "tavily:answer",
			Timestamp:        &now,
			CredibilityPrior: DefaultCredibility,
		})
	}
	for _, result := range decoded.Results {
		content := StripHTML(result.Content)
		if content == "" {
			continue
		}
		if title := strings.TrimSpace(result.Title); title != "" {
			content = title + ": " + content
		}
		score := result.Score
		items = append(items, evidence.Item{
			Source:           evidence.SourceWeb,
			Content:          content,
			Locator:          result.URL,
			Timestamp:        &now,
			CredibilityPrior: DefaultCredibility,
			RawScore:         &score,
		})
	}
	return items, nil
}

// StripHTML reduces an HTML fragment to its text content. Plain text passes
// through with whitespace collapsed.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<>") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	doc.Find("script, style").Remove()
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
