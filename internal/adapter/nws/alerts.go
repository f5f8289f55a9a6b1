// Package nws adapts the National Weather Service alerts API to the
// canonical storm event model. Lookups are two-step: the coordinate is first
// resolved to its forecast grid, then alerts are queried scoped to that grid
// and a date range. A 404 from the alert endpoint means the point has no
// alert coverage and is treated as zero alerts, not an error.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/canvassiq/storm-intel/internal/cache"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source is the adapter name stamped on every event this package produces.
const Source = "alerts"

// userAgent identifies the service per the api.weather.gov usage policy.
const userAgent = "storm-intel/1.0 (ops@canvassiq.com)"

// stormCategories is the allow-list of alert categories that count as storm
// activity. Alerts outside the list still pass when the source independently
// marks them Severe or Extreme.
var stormCategories = map[string]bool{
	"severe thunderstorm warning": true,
	"severe thunderstorm watch":   true,
	"tornado warning":             true,
	"tornado watch":               true,
}

// Client talks to the NWS alerts API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Cache[[]domain.StormEvent]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options tunes a Client beyond its required dependencies.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	CacheMax int
	Clock    clockwork.Clock
}

// NewClient creates an alerts client. The API is keyless.
func NewClient(metrics *observability.Metrics, logger *slog.Logger, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.weather.gov"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.CacheMax == 0 {
		opts.CacheMax = 500
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		cache:      cache.New[[]domain.StormEvent](opts.CacheTTL, opts.CacheMax, opts.Clock),
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchStormWarnings returns storm-relevant alerts near a coordinate over the
// trailing window of months. Failures degrade to an empty slice, with the
// error returned alongside so callers can report per-source status.
func (c *Client) FetchStormWarnings(ctx context.Context, lat, lon float64, months int) ([]domain.StormEvent, error) {
	now := domain.Now()
	start := now.AddDate(0, -months, 0)

	key := fmt.Sprintf("%s:%d", cache.TimeKey(cache.CoordKey(Source, lat, lon), now), months)
	if events, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(Source, "hit").Inc()
		return events, nil
	}
	c.metrics.CacheLookups.WithLabelValues(Source, "miss").Inc()

	reqStart := time.Now()
	zone, err := c.resolveZone(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("alert grid resolution failed", "lat", lat, "lon", lon, "error", err)
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("resolve alert zone: %w", err)
	}
	if zone == "" {
		// Outside alert coverage.
		c.cache.Set(key, nil)
		c.metrics.AdapterRequests.WithLabelValues(Source, "empty").Inc()
		return nil, nil
	}

	features, err := c.fetchAlerts(ctx, zone, start, now)
	if err != nil {
		c.logger.Warn("alert query failed", "zone", zone, "error", err)
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	c.metrics.AdapterDuration.WithLabelValues(Source).Observe(time.Since(reqStart).Seconds())

	events := normalizeAlerts(features, lat, lon)
	if len(events) == 0 {
		c.metrics.AdapterRequests.WithLabelValues(Source, "empty").Inc()
	} else {
		c.metrics.AdapterRequests.WithLabelValues(Source, "success").Inc()
		c.metrics.EventsReturned.WithLabelValues(Source).Add(float64(len(events)))
	}

	c.cache.Set(key, events)
	return events, nil
}

// resolveZone maps a coordinate to its forecast zone code via the points
// endpoint. A 404 means the point is outside NWS coverage.
func (c *Client) resolveZone(ctx context.Context, lat, lon float64) (string, error) {
	u := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)
	body, status, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("points lookup: status %d", status)
	}

	var payload pointsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode points response: %w", err)
	}
	if payload.Properties.ForecastZone == "" {
		return "", fmt.Errorf("points response missing forecast zone")
	}

	// The zone arrives as a URL like .../zones/forecast/VAZ048.
	parts := strings.Split(strings.TrimRight(payload.Properties.ForecastZone, "/"), "/")
	return parts[len(parts)-1], nil
}

// fetchAlerts queries alerts for a zone and date range. 404 means zero alerts.
func (c *Client) fetchAlerts(ctx context.Context, zone string, start, end time.Time) ([]alertFeature, error) {
	params := url.Values{
		"zone":  {zone},
		"start": {start.UTC().Format(time.RFC3339)},
		"end":   {end.UTC().Format(time.RFC3339)},
	}
	body, status, err := c.get(ctx, c.baseURL+"/alerts?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("alert query: status %d", status)
	}

	var payload alertsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode alerts response: %w", err)
	}
	return payload.Features, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("nws request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read nws response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// normalizeAlerts filters features to storm-relevant ones and converts them
// to canonical events. Alerts carry no point geometry of their own, so events
// inherit the queried coordinate.
func normalizeAlerts(features []alertFeature, lat, lon float64) []domain.StormEvent {
	events := make([]domain.StormEvent, 0, len(features))
	for _, f := range features {
		p := f.Properties
		if !stormRelevant(p.Event, p.Severity) {
			continue
		}

		eventType := domain.EventWind
		if strings.Contains(strings.ToLower(p.Event), "tornado") {
			eventType = domain.EventTornado
		}

		date := p.Onset
		if date.IsZero() {
			date = p.Effective
		}
		if date.IsZero() {
			continue
		}

		event, ok := domain.NewStormEvent(Source, eventType, date, lat, lon, nil, false)
		if !ok {
			continue
		}
		events = append(events, event)
	}
	return events
}

// stormRelevant applies the category allow-list plus the independent
// Severe/Extreme escalation path.
func stormRelevant(event, severity string) bool {
	if stormCategories[strings.ToLower(strings.TrimSpace(event))] {
		return true
	}
	switch strings.ToLower(severity) {
	case "severe", "extreme":
		return true
	}
	return false
}

// NWS GeoJSON response types, trimmed to the fields we consume.

type pointsResponse struct {
	Properties struct {
		GridID       string `json:"gridId"`
		ForecastZone string `json:"forecastZone"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	Properties alertProperties `json:"properties"`
}

type alertProperties struct {
	Headline  string    `json:"headline"`
	Event     string    `json:"event"`
	Severity  string    `json:"severity"`
	Onset     time.Time `json:"onset"`
	Effective time.Time `json:"effective"`
	Expires   time.Time `json:"expires"`
}
