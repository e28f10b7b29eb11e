// Package weather answers forecast sub-queries with the Open-Meteo API,
// geocoding locations through Nominatim first. Neither service needs an API
// key, so the adapter is registered whenever the source is enabled.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

const (
	defaultGeocodeEndpoint  = "https://nominatim.openstreetmap.org/search"
	defaultForecastEndpoint = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout          = 10 * time.Second
	userAgent               = "queryweave/1.0"
)

// Credibility is the prior for official forecast data.
const Credibility = 0.95

// Adapter implements the weather evidence source.
type Adapter struct {
	geocodeEndpoint  string
	forecastEndpoint string
	httpClient       *http.Client
	now              func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithEndpoints overrides the geocoding and forecast endpoints, for tests.
func WithEndpoints(geocode, forecast string) Option {
	return func(a *Adapter) {
		if geocode != "" {
			a.geocodeEndpoint = geocode
		}
		if forecast != "" {
			a.forecastEndpoint = forecast
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.httpClient = client }
}

// New creates the weather adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		geocodeEndpoint:  defaultGeocodeEndpoint,
		forecastEndpoint: defaultForecastEndpoint,
		httpClient:       &http.Client{Timeout: defaultTimeout},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceWeather }

// Call resolves the location and fetches its forecast. The location comes
// from the "location" parameter when the planner set one, otherwise the whole
// sub-query text is geocoded; Nominatim handles free-form queries. An optional
// "date" parameter (YYYY-MM-DD) narrows the forecast to that day.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	location := source.Param(req.Params, "location")
	if location == "" {
		location = strings.TrimSpace(req.Query)
	}
	if location == "" {
		return nil, source.NewError(evidence.SourceWeather, source.ErrNotFound,
			fmt.Errorf("no location in request"))
	}

	lat, lon, display, err := a.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	date := source.Param(req.Params, "date")
	forecast, err := a.forecast(ctx, lat, lon, date)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	return []evidence.Item{{
		Source:           evidence.SourceWeather,
		Content:          forecast,
		Locator:          fmt.Sprintf("%.4f,%.4f", lat, lon),
		Timestamp:        &now,
		CredibilityPrior: Credibility,
		Metadata:         map[string]any{"location": display},
	}}, nil
}

type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (a *Adapter) geocode(ctx context.Context, location string) (lat, lon float64, display string, err error) {
	query := url.Values{
		"q":      {location},
		"format": {"json"},
		"limit":  {"1"},
	}
	body, err := a.get(ctx, a.geocodeEndpoint+"?"+query.Encode())
	if err != nil {
		return 0, 0, "", err
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, "", source.NewError(evidence.SourceWeather, source.ErrUpstream,
			fmt.Errorf("decode geocode response: %w", err))
	}
	if len(results) == 0 {
		return 0, 0, "", source.NewError(evidence.SourceWeather, source.ErrNotFound,
			fmt.Errorf("could not geocode location %q", location))
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, "", source.NewError(evidence.SourceWeather, source.ErrUpstream,
			fmt.Errorf("invalid coordinates for %q", location))
	}
	return lat, lon, results[0].DisplayName, nil
}

type forecastResponse struct {
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly *struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Precipitation []float64 `json:"precipitation"`
		WindSpeed     []float64 `json:"windspeed_10m"`
	} `json:"hourly"`
}

func (a *Adapter) forecast(ctx context.Context, lat, lon float64, date string) (string, error) {
	query := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 4, 64)},
		"hourly":    {"temperature_2m,precipitation,windspeed_10m"},
	}
	if date != "" {
		query.Set("start_date", date)
		query.Set("end_date", date)
	} else {
		query.Set("current_weather", "true")
	}

	body, err := a.get(ctx, a.forecastEndpoint+"?"+query.Encode())
	if err != nil {
		return "", err
	}

	var decoded forecastResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", source.NewError(evidence.SourceWeather, source.ErrUpstream,
			fmt.Errorf("decode forecast response: %w", err))
	}
	return summarize(decoded, date), nil
}

// summarize renders the forecast as prose so the synthesizer can quote it
// directly instead of parsing JSON.
func summarize(f forecastResponse, date string) string {
	var sb strings.Builder
	if f.CurrentWeather != nil {
		fmt.Fprintf(&sb, "Current weather at %s: %.1f C, wind %.1f km/h.",
			f.CurrentWeather.Time, f.CurrentWeather.Temperature, f.CurrentWeather.WindSpeed)
	}
	if f.Hourly != nil && len(f.Hourly.Time) > 0 {
		minTemp, maxTemp := f.Hourly.Temperature[0], f.Hourly.Temperature[0]
		var totalPrecip, maxWind float64
		for i := range f.Hourly.Time {
			if i < len(f.Hourly.Temperature) {
				if f.Hourly.Temperature[i] < minTemp {
					minTemp = f.Hourly.Temperature[i]
				}
				if f.Hourly.Temperature[i] > maxTemp {
					maxTemp = f.Hourly.Temperature[i]
				}
			}
			if i < len(f.Hourly.Precipitation) {
				totalPrecip += f.Hourly.Precipitation[i]
			}
			if i < len(f.Hourly.WindSpeed) && f.Hourly.WindSpeed[i] > maxWind {
				maxWind = f.Hourly.WindSpeed[i]
			}
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		day := date
		if day == "" {
			day = "the coming hours"
		}
		fmt.Fprintf(&sb, "Forecast for %s: temperatures %.1f to %.1f C, total precipitation %.1f mm, wind up to %.1f km/h.",
			day, minTemp, maxTemp, totalPrecip, maxWind)
	}
	if sb.Len() == 0 {
		return "No forecast data available."
	}
	return sb.String()
}

func (a *Adapter) get(ctx context.Context, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, source.NewError(evidence.SourceWeather, source.ErrUpstream, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, source.TransportError(evidence.SourceWeather, err)
	}
	defer resp.Body.Close()

	if err := source.StatusError(evidence.SourceWeather, resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.TransportError(evidence.SourceWeather, err)
	}
	return body, nil
}
