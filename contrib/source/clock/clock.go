// Package clock answers current-time sub-queries. Known locations resolve
// through a built-in timezone table and the local tzdata; unknown timezone
// names fall back to the worldtime HTTP API.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

const (
	defaultEndpoint = "https://worldtimeapi.org/api/timezone"
	defaultTimeout  = 5 * time.Second
	defaultTimezone = "Asia/Hong_Kong"
)

// Credibility is the prior for clock data.
const Credibility = 1.0

// locationTimezones maps location names, including Chinese variants, to IANA
// timezone identifiers.
var locationTimezones = map[string]string{
	"hong kong": "Asia/Hong_Kong",
	"hk":        "Asia/Hong_Kong",
	"香港":        "Asia/Hong_Kong",

	"beijing":  "Asia/Shanghai",
	"shanghai": "Asia/Shanghai",
	"china":    "Asia/Shanghai",
	"北京":       "Asia/Shanghai",
	"上海":       "Asia/Shanghai",
	"中国":       "Asia/Shanghai",

	"tokyo": "Asia/Tokyo",
	"japan": "Asia/Tokyo",
	"東京":    "Asia/Tokyo",
	"日本":    "Asia/Tokyo",

	"new york":      "America/New_York",
	"los angeles":   "America/Los_Angeles",
	"chicago":       "America/Chicago",
	"san francisco": "America/Los_Angeles",
	"washington":    "America/New_York",
	"usa":           "America/New_York",

	"london":  "Europe/London",
	"uk":      "Europe/London",
	"england": "Europe/London",

	"paris":     "Europe/Paris",
	"berlin":    "Europe/Berlin",
	"rome":      "Europe/Rome",
	"madrid":    "Europe/Madrid",
	"amsterdam": "Europe/Amsterdam",
	"france":    "Europe/Paris",
	"germany":   "Europe/Berlin",
	"italy":     "Europe/Rome",
	"spain":     "Europe/Madrid",

	"singapore":    "Asia/Singapore",
	"bangkok":      "Asia/Bangkok",
	"seoul":        "Asia/Seoul",
	"taipei":       "Asia/Taipei",
	"manila":       "Asia/Manila",
	"kuala lumpur": "Asia/Kuala_Lumpur",
	"jakarta":      "Asia/Jakarta",
	"hanoi":        "Asia/Ho_Chi_Minh",
	"mumbai":       "Asia/Kolkata",
	"delhi":        "Asia/Kolkata",
	"dubai":        "Asia/Dubai",

	"sydney":    "Australia/Sydney",
	"melbourne": "Australia/Melbourne",
	"brisbane":  "Australia/Brisbane",
	"perth":     "Australia/Perth",
	"australia": "Australia/Sydney",

	"moscow":    "Europe/Moscow",
	"toronto":   "America/Toronto",
	"vancouver": "America/Vancouver",
	"montreal":  "America/Toronto",
	"canada":    "America/Toronto",
}

// Adapter implements the time evidence source.
type Adapter struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithEndpoint overrides the worldtime API endpoint, for tests.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client used for the fallback API.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates the clock adapter.
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

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceTime }

// Call reports the current time for the requested location. The location
// comes from the "location" parameter or is scanned for in the query text;
// with no match the default timezone answers.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	location := source.Param(req.Params, "location")
	if location == "" {
		location = req.Query
	}

	name, tz := resolveTimezone(location)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return a.fallback(ctx, name, tz)
	}

	now := a.now().In(loc)
	utc := now.UTC()
	return []evidence.Item{{
		Source: evidence.SourceTime,
		Content: fmt.Sprintf("Current time in %s (%s): %s, %s.",
			name, tz, now.Format("2006-01-02 15:04:05"), now.Weekday()),
		Locator:          tz,
		Timestamp:        &utc,
		CredibilityPrior: Credibility,
	}}, nil
}

// fallback asks the worldtime API when the local tzdata cannot resolve the
// timezone, for example on stripped-down containers.
func (a *Adapter) fallback(ctx context.Context, name, tz string) ([]evidence.Item, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/"+tz, nil)
	if err != nil {
		return nil, source.NewError(evidence.SourceTime, source.ErrUpstream, err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, source.TransportError(evidence.SourceTime, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceTime, resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded struct {
		Datetime string `json:"datetime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, source.NewError(evidence.SourceTime, source.ErrUpstream,
			fmt.Errorf("decode worldtime response: %w", err))
	}

	parsed, err := time.Parse(time.RFC3339, decoded.Datetime)
	if err != nil {
		return nil, source.NewError(evidence.SourceTime, source.ErrUpstream,
			fmt.Errorf("invalid datetime %q: %w", decoded.Datetime, err))
	}

	utc := parsed.UTC()
	return []evidence.Item{{
		Source: evidence.SourceTime,
		Content: fmt.Sprintf("Current time in %s (%s): %s, %s.",
			name, tz, parsed.Format("2006-01-02 15:04:05"), parsed.Weekday()),
		Locator:          tz,
		Timestamp:        &utc,
		CredibilityPrior: Credibility,
	}}, nil
}

// resolveTimezone scans the text for a known location. Longer names are
// checked first so "new york" wins over "usa" style substrings.
func resolveTimezone(text string) (name, tz string) {
	lower := strings.ToLower(text)
	bestLen := 0
	name, tz = "Hong Kong", defaultTimezone
	for location, zone := range locationTimezones {
		if strings.Contains(lower, location) && len(location) > bestLen {
			bestLen = len(location)
			name, tz = location, zone
		}
	}
	return name, tz
}
