// Package transport answers routing sub-queries with the openrouteservice
// API: geocode origin and destination, then request directions between them.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

const (
	defaultGeocodeEndpoint    = "https://api.openrouteservice.org/geocode/search"
	defaultDirectionsEndpoint = "https://api.openrouteservice.org/v2/directions"
	defaultProfile            = "driving-car"
	defaultTimeout            = 15 * time.Second
)

// Credibility is the prior for routing data.
const Credibility = 0.9

// Adapter implements the transport evidence source.
type Adapter struct {
	apiKey             string
	geocodeEndpoint    string
	directionsEndpoint string
	profile            string
	httpClient         *http.Client
	now                func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithEndpoints overrides the geocoding and directions endpoints, for tests.
func WithEndpoints(geocode, directions string) Option {
	return func(a *Adapter) {
		if geocode != "" {
			a.geocodeEndpoint = geocode
		}
		if directions != "" {
			a.directionsEndpoint = directions
		}
	}
}

// WithProfile sets the default routing profile, for example "foot-walking"
// or "cycling-regular".
func WithProfile(profile string) Option {
	return func(a *Adapter) {
		if profile != "" {
			a.profile = profile
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New creates the transport adapter. An API key is required.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("transport: API key is required")
	}
	a := &Adapter{
		apiKey:             apiKey,
		geocodeEndpoint:    defaultGeocodeEndpoint,
		directionsEndpoint: defaultDirectionsEndpoint,
		profile:            defaultProfile,
		httpClient:         &http.Client{Timeout: defaultTimeout},
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceTransport }

// Call plans a route. Origin and destination come from the "origin" and
// "destination" parameters, or are split out of a "X to Y" query.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	origin := source.Param(req.Params, "origin")
	destination := source.Param(req.Params, "destination")
	if origin == "" || destination == "" {
		origin, destination = splitRoute(req.Query)
	}
	if origin == "" || destination == "" {
		return nil, source.NewError(evidence.SourceTransport, source.ErrNotFound,
			fmt.Errorf("could not determine origin and destination"))
	}

	from, err := a.geocode(ctx, origin)
	if err != nil {
		return nil, err
	}
	to, err := a.geocode(ctx, destination)
	if err != nil {
		return nil, err
	}

	profile := source.Param(req.Params, "mode")
	if profile == "" {
		profile = a.profile
	}

	summary, err := a.directions(ctx, profile, from, to)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	return []evidence.Item{{
		Source:           evidence.SourceTransport,
		Content:          fmt.Sprintf("Route from %s to %s (%s): %s", origin, destination, profile, summary),
		Locator:          fmt.Sprintf("%s->%s", origin, destination),
		Timestamp:        &now,
		CredibilityPrior: Credibility,
	}}, nil
}

type coordinates [2]float64 // lon, lat

func (a *Adapter) geocode(ctx context.Context, place string) (coordinates, error) {
	query := url.Values{
		"api_key": {a.apiKey},
		"text":    {place},
		"size":    {"1"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.geocodeEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return coordinates{}, source.NewError(evidence.SourceTransport, source.ErrUpstream, err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return coordinates{}, source.TransportError(evidence.SourceTransport, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceTransport, resp.StatusCode); err != nil {
		return coordinates{}, err
	}

	var decoded struct {
		Features []struct {
			Geometry struct {
				Coordinates coordinates `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return coordinates{}, source.NewError(evidence.SourceTransport, source.ErrUpstream,
			fmt.Errorf("decode geocode response: %w", err))
	}
	if len(decoded.Features) == 0 {
		return coordinates{}, source.NewError(evidence.SourceTransport, source.ErrNotFound,
			fmt.Errorf("could not geocode %q", place))
	}
	return decoded.Features[0].Geometry.Coordinates, nil
}

func (a *Adapter) directions(ctx context.Context, profile string, from, to coordinates) (string, error) {
	body, err := json.Marshal(map[string]any{
		"coordinates": []coordinates{from, to},
	})
	if err != nil {
		return "", source.NewError(evidence.SourceTransport, source.ErrUpstream, err)
	}

	endpoint := a.directionsEndpoint + "/" + profile
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", source.NewError(evidence.SourceTransport, source.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", source.TransportError(evidence.SourceTransport, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceTransport, resp.StatusCode); err != nil {
		return "", err
	}

	var decoded struct {
		Routes []struct {
			Summary struct {
				Distance float64 `json:"distance"` // metres
				Duration float64 `json:"duration"` // seconds
			} `json:"summary"`
			Segments []struct {
				Steps []struct {
					Instruction string  `json:"instruction"`
					Distance    float64 `json:"distance"`
				} `json:"steps"`
			} `json:"segments"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", source.NewError(evidence.SourceTransport, source.ErrUpstream,
			fmt.Errorf("decode directions response: %w", err))
	}
	if len(decoded.Routes) == 0 {
		return "", source.NewError(evidence.SourceTransport, source.ErrNotFound,
			fmt.Errorf("no route found"))
	}

	route := decoded.Routes[0]
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.1f km, about %s.",
		route.Summary.Distance/1000, formatDuration(route.Summary.Duration))
	steps := 0
	for _, segment := range route.Segments {
		for _, step := range segment.Steps {
			if steps >= 8 {
				break
			}
			fmt.Fprintf(&sb, " %s (%.0f m).", step.Instruction, step.Distance)
			steps++
		}
	}
	return sb.String(), nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}

// splitRoute extracts origin and destination from phrasings like
// "from X to Y" or "X to Y".
func splitRoute(query string) (origin, destination string) {
	text := strings.TrimSpace(query)
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, "from "); idx >= 0 {
		text = text[idx+len("from "):]
		lower = strings.ToLower(text)
	}
	if idx := strings.Index(lower, " to "); idx >= 0 {
		origin = strings.TrimSpace(text[:idx])
		destination = strings.TrimSpace(text[idx+len(" to "):])
		destination = strings.TrimRight(destination, "?.!")
		return origin, destination
	}
	return "", ""
}
