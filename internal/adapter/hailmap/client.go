// Package hailmap adapts a commercial hail catalog provider to the canonical
// storm event model. The provider requires an address-to-marker registration
// step before historical lookups; lookups accept a marker id, raw
// coordinates, or an address (which implicitly registers a monitor first).
//
// Search methods degrade to an empty result on provider failure, returning
// the error only so callers can report per-source status; a missing API key
// is the one hard failure, surfaced at construction time.
package hailmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/canvassiq/storm-intel/internal/cache"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/geocode"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source is the adapter name stamped on every event this package produces.
const Source = "catalog"

// Monitor is the provider's registration of an address for hail tracking.
// Coord is nil when neither the provider nor the geocoder could resolve one.
type Monitor struct {
	MarkerID string
	Coord    *domain.Coordinate
}

// Client talks to the hail catalog API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	geocoder   geocode.Geocoder
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

// NewClient creates a catalog client. The geocoder backfills coordinates when
// the provider omits them from a monitor registration. Returns an error when
// the API key is missing — the one error class this adapter refuses to
// swallow.
func NewClient(apiKey string, geocoder geocode.Geocoder, metrics *observability.Metrics, logger *slog.Logger, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("hail catalog: HAILMAP_API_KEY is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.hailmap.io/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.CacheMax == 0 {
		opts.CacheMax = 500
	}

	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		geocoder:   geocoder,
		cache:      cache.New[[]domain.StormEvent](opts.CacheTTL, opts.CacheMax, opts.Clock),
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// CreateMonitor registers an address with the provider and returns its marker
// id. When the provider response omits coordinates, the geocoder is consulted
// as a fallback; a monitor without coordinates is still usable for
// marker-based lookups.
func (c *Client) CreateMonitor(ctx context.Context, addr geocode.Address) (Monitor, error) {
	body, err := json.Marshal(map[string]string{
		"address": addr.Street,
		"city":    addr.City,
		"state":   addr.State,
		"zip":     addr.Zip,
	})
	if err != nil {
		return Monitor{}, fmt.Errorf("encode monitor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/monitors", bytes.NewReader(body))
	if err != nil {
		return Monitor{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Monitor{}, fmt.Errorf("create monitor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return Monitor{}, fmt.Errorf("catalog API error: status %d: %s", resp.StatusCode, raw)
	}

	var payload monitorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Monitor{}, fmt.Errorf("decode monitor response: %w", err)
	}
	if payload.ID == "" {
		return Monitor{}, fmt.Errorf("catalog returned a monitor without an id")
	}

	m := Monitor{MarkerID: payload.ID}
	if domain.ValidCoordinates(payload.Lat, payload.Lng) {
		m.Coord = &domain.Coordinate{Lat: payload.Lat, Lon: payload.Lng}
	} else if coord, ok := c.geocoder.Geocode(ctx, addr); ok {
		m.Coord = &coord
	} else {
		c.logger.Warn("monitor registered without coordinates", "marker_id", m.MarkerID, "street", addr.Street)
	}
	return m, nil
}

// SearchByMarker returns historical hail impacts for a registered marker over
// the trailing window of months. Provider failures degrade to an empty slice;
// the error is returned alongside so callers can report source status.
func (c *Client) SearchByMarker(ctx context.Context, markerID string, months int) ([]domain.StormEvent, error) {
	key := fmt.Sprintf("marker:%s:%d", markerID, months)
	if events, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(Source, "hit").Inc()
		return events, nil
	}
	c.metrics.CacheLookups.WithLabelValues(Source, "miss").Inc()

	params := url.Values{
		"markerId": {markerID},
		"months":   {fmt.Sprintf("%d", months)},
	}
	events, err := c.fetchImpacts(ctx, "/impact-dates/marker", params, nil)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, events)
	return events, nil
}

// SearchByCoordinates returns historical hail impacts near a point.
// radiusMiles of 0 uses the provider's default search radius.
func (c *Client) SearchByCoordinates(ctx context.Context, lat, lon, radiusMiles float64, months int) ([]domain.StormEvent, error) {
	key := fmt.Sprintf("%s:%.0f:%d", cache.CoordKey("coords", lat, lon), radiusMiles, months)
	if events, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues(Source, "hit").Inc()
		return events, nil
	}
	c.metrics.CacheLookups.WithLabelValues(Source, "miss").Inc()

	params := url.Values{
		"lat":    {fmt.Sprintf("%.6f", lat)},
		"lng":    {fmt.Sprintf("%.6f", lon)},
		"months": {fmt.Sprintf("%d", months)},
	}
	if radiusMiles > 0 {
		params.Set("radius", fmt.Sprintf("%.1f", radiusMiles))
	}
	fallback := &domain.Coordinate{Lat: lat, Lon: lon}
	events, err := c.fetchImpacts(ctx, "/impact-dates/location", params, fallback)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, events)
	return events, nil
}

// SearchByAddress registers a monitor for the address, then searches by the
// resulting marker. The monitor is returned so callers can reuse it.
func (c *Client) SearchByAddress(ctx context.Context, addr geocode.Address, months int) ([]domain.StormEvent, Monitor, error) {
	monitor, err := c.CreateMonitor(ctx, addr)
	if err != nil {
		return nil, Monitor{}, fmt.Errorf("register monitor: %w", err)
	}
	events, err := c.SearchByMarker(ctx, monitor.MarkerID, months)
	return events, monitor, err
}

// fetchImpacts performs a GET against an impact-dates endpoint and normalizes
// the response.
func (c *Client) fetchImpacts(ctx context.Context, path string, params url.Values, fallbackCoord *domain.Coordinate) ([]domain.StormEvent, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.AdapterDuration.WithLabelValues(Source).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("catalog API error: status %d: %s", resp.StatusCode, raw)
	}

	var payload impactResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	events := normalizeImpacts(payload.ImpactDates, fallbackCoord)
	if len(events) == 0 {
		c.metrics.AdapterRequests.WithLabelValues(Source, "empty").Inc()
	} else {
		c.metrics.AdapterRequests.WithLabelValues(Source, "success").Inc()
		c.metrics.EventsReturned.WithLabelValues(Source).Add(float64(len(events)))
	}
	return events, nil
}

type monitorResponse struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// impactResponse is the provider's ImpactDates-shaped payload. Items are kept
// as generic maps because field names vary across provider plan tiers; see
// extract.go for the probing rules.
type impactResponse struct {
	ImpactDates []map[string]any `json:"impactDates"`
}
