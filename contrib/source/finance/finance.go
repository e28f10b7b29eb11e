// Package finance answers market-data sub-queries with the Stooq CSV quote
// API. The API is keyless; quota errors therefore only surface as upstream
// rate-limit statuses.
package finance

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

const (
	defaultEndpoint = "https://stooq.com/q/l/"
	defaultTimeout  = 10 * time.Second
)

// Credibility is the prior for exchange quote data.
const Credibility = 0.95

// tickerPattern matches explicit ticker symbols in a sub-query, including
// suffixed forms like 0700.HK or AAPL.US.
var tickerPattern = regexp.MustCompile(`\b[A-Z0-9]{1,6}(?:\.[A-Z]{2})?\b`)

// tickerStopwords are uppercase words that look like tickers but are not.
var tickerStopwords = map[string]struct{}{
	"A": {}, "I": {}, "THE": {}, "AND": {}, "OR": {}, "VS": {}, "FOR": {},
	"OF": {}, "IN": {}, "ON": {}, "AT": {}, "TO": {}, "IS": {}, "ETF": {},
	"USD": {}, "HKD": {}, "EUR": {}, "PRICE": {}, "STOCK": {},
}

// Adapter implements the finance evidence source.
type Adapter struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithEndpoint overrides the quote endpoint, for tests.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New creates the finance adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceFinance }

// Call fetches quotes for every ticker named by the sub-query. Tickers come
// from the "ticker" or "tickers" parameter when the planner set one,
// otherwise they are extracted from the query text. Comparing multiple
// tickers yields one evidence item per quote.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	tickers := requestTickers(req)
	if len(tickers) == 0 {
		return nil, source.NewError(evidence.SourceFinance, source.ErrNotFound,
			fmt.Errorf("no ticker symbol in request"))
	}

	items := make([]evidence.Item, 0, len(tickers))
	for _, ticker := range tickers {
		quote, err := a.quote(ctx, ticker)
		if err != nil {
			return nil, err
		}
		items = append(items, quote)
	}
	return items, nil
}

// quoteFields is the Stooq field list: symbol, date, time, open, high, low,
// close, volume.
const quoteFields = "sd2t2ohlcv"

func (a *Adapter) quote(ctx context.Context, ticker string) (evidence.Item, error) {
	query := url.Values{
		"s": {strings.ToLower(ticker)},
		"f": {quoteFields},
		"h": {""},
		"e": {"csv"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return evidence.Item{}, source.NewError(evidence.SourceFinance, source.ErrUpstream, err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return evidence.Item{}, source.TransportError(evidence.SourceFinance, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceFinance, resp.StatusCode); err != nil {
		return evidence.Item{}, err
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return evidence.Item{}, source.NewError(evidence.SourceFinance, source.ErrUpstream,
			fmt.Errorf("decode quote CSV: %w", err))
	}
	if len(records) < 2 || len(records[1]) < 7 {
		return evidence.Item{}, source.NewError(evidence.SourceFinance, source.ErrUpstream,
			fmt.Errorf("unexpected quote format for %s", ticker))
	}

	row := records[1]
	if row[3] == "N/D" || row[6] == "N/D" {
		return evidence.Item{}, source.NewError(evidence.SourceFinance, source.ErrNotFound,
			fmt.Errorf("no data for ticker %s", ticker))
	}

	symbol, date, clock := row[0], row[1], row[2]
	open, _ := strconv.ParseFloat(row[3], 64)
	high, _ := strconv.ParseFloat(row[4], 64)
	low, _ := strconv.ParseFloat(row[5], 64)
	closePrice, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return evidence.Item{}, source.NewError(evidence.SourceFinance, source.ErrUpstream,
			fmt.Errorf("invalid close price for %s: %w", ticker, err))
	}

	change := closePrice - open
	changePct := 0.0
	if open != 0 {
		changePct = change / open * 100
	}

	ts := a.parseQuoteTime(date, clock)
	content := fmt.Sprintf(
		"%s quote as of %s %s: close %.2f, open %.2f, high %.2f, low %.2f, change %+.2f (%+.2f%%).",
		strings.ToUpper(symbol), date, clock, closePrice, open, high, low, change, changePct)

	return evidence.Item{
		Source:           evidence.SourceFinance,
		Content:          content,
		Locator:          strings.ToUpper(symbol),
		Timestamp:        ts,
		CredibilityPrior: Credibility,
	}, nil
}

func (a *Adapter) parseQuoteTime(date, clock string) *time.Time {
	parsed, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		now := a.now().UTC()
		return &now
	}
	return &parsed
}

func requestTickers(req source.Request) []string {
	if t := source.Param(req.Params, "ticker"); t != "" {
		return []string{strings.ToUpper(t)}
	}
	if ts := source.Param(req.Params, "tickers"); ts != "" {
		var out []string
		for _, t := range strings.Split(ts, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, strings.ToUpper(t))
			}
		}
		return out
	}
	return ExtractTickers(req.Query)
}

// ExtractTickers pulls ticker-like uppercase symbols out of free text,
// skipping common English words.
func ExtractTickers(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, match := range tickerPattern.FindAllString(text, -1) {
		if _, stop := tickerStopwords[match]; stop {
			continue
		}
		// Single stray capitals are never tickers, and bare numbers are
		// years or quantities rather than symbols.
		if len(match) < 2 {
			continue
		}
		if !strings.Contains(match, ".") && strings.Trim(match, "0123456789") == "" {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		out = append(out, match)
	}
	return out
}
