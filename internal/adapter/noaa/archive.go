// Package noaa adapts the NOAA Storm Events bulk archive to the canonical
// storm event model. Each year of data is a gzip-compressed CSV discovered
// from an HTTP directory listing, streamed and parsed row by row so peak
// memory stays bounded regardless of archive size. Archive records are the
// only certified events in the system.
package noaa

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/canvassiq/storm-intel/internal/cache"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source is the adapter name stamped on every event this package produces.
const Source = "archive"

// beginDateTimeLayout matches the archive's BEGIN_DATE_TIME column,
// e.g. "15-APR-26 14:30:00".
const beginDateTimeLayout = "02-Jan-06 15:04:05"

// Archive fetches and filters historical storm events.
type Archive struct {
	resolver   FileResolver
	httpClient *http.Client
	cache      *cache.Cache[[]domain.StormEvent]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options tunes an Archive beyond its required dependencies.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	CacheMax int
	Clock    clockwork.Clock
}

// NewArchive creates an archive adapter. Year downloads are cached for
// CacheTTL (default 24h) per rounded query point.
func NewArchive(resolver FileResolver, metrics *observability.Metrics, logger *slog.Logger, opts Options) *Archive {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.CacheMax == 0 {
		opts.CacheMax = 200
	}
	return &Archive{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      cache.New[[]domain.StormEvent](opts.CacheTTL, opts.CacheMax, opts.Clock),
		metrics:    metrics,
		logger:     logger,
	}
}

// Search returns certified events within radiusMiles of center over the
// trailing window of months. Years are fetched independently and unioned; a
// failed year is logged and skipped rather than failing the whole query. The
// error is non-nil only when every year in the window failed, so callers can
// report the source as down while partial results still flow through.
func (a *Archive) Search(ctx context.Context, center domain.Coordinate, radiusMiles float64, months int) ([]domain.StormEvent, error) {
	now := domain.Now()
	cutoff := now.AddDate(0, -months, 0)

	var merged []domain.StormEvent
	var failures, years int
	var lastErr error
	for year := cutoff.Year(); year <= now.Year(); year++ {
		years++
		events, err := a.yearEvents(ctx, year, center, radiusMiles)
		if err != nil {
			a.logger.Warn("archive year fetch failed", "year", year, "error", err)
			a.metrics.AdapterRequests.WithLabelValues(Source, "error").Inc()
			failures++
			lastErr = err
			continue
		}
		merged = append(merged, events...)
	}
	if failures == years {
		return nil, fmt.Errorf("all %d archive years failed: %w", years, lastErr)
	}

	// The window cutoff rarely falls on a year boundary, so trim the union.
	filtered := merged[:0]
	for _, e := range merged {
		if !e.Date.Before(cutoff) {
			filtered = append(filtered, e)
		}
	}

	if len(filtered) == 0 {
		a.metrics.AdapterRequests.WithLabelValues(Source, "empty").Inc()
	} else {
		a.metrics.AdapterRequests.WithLabelValues(Source, "success").Inc()
		a.metrics.EventsReturned.WithLabelValues(Source).Add(float64(len(filtered)))
	}
	return filtered, nil
}

// yearEvents returns the geofiltered events for one year, fetching and
// streaming the archive file on a cache miss.
func (a *Archive) yearEvents(ctx context.Context, year int, center domain.Coordinate, radiusMiles float64) ([]domain.StormEvent, error) {
	key := fmt.Sprintf("%s:%.0f:%d", cache.CoordKey(Source, center.Lat, center.Lon), radiusMiles, year)
	if events, ok := a.cache.Get(key); ok {
		a.metrics.CacheLookups.WithLabelValues(Source, "hit").Inc()
		return events, nil
	}
	a.metrics.CacheLookups.WithLabelValues(Source, "miss").Inc()

	fileURL, err := a.resolver.Resolve(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("resolve year %d: %w", year, err)
	}
	if fileURL == "" {
		// No file published for the year. Cache the empty result so the
		// listing is not re-scraped on every query.
		a.cache.Set(key, nil)
		return nil, nil
	}

	start := time.Now()
	events, err := a.fetchAndParse(ctx, fileURL, center, radiusMiles)
	if err != nil {
		return nil, err
	}
	a.metrics.AdapterDuration.WithLabelValues(Source).Observe(time.Since(start).Seconds())

	a.cache.Set(key, events)
	return events, nil
}

func (a *Archive) fetchAndParse(ctx context.Context, fileURL string, center domain.Coordinate, radiusMiles float64) ([]domain.StormEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download archive file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download archive file: status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	return parseRows(gz, center, radiusMiles)
}

// parseRows streams the CSV, classifying and geofiltering each row. Rows with
// an unrecognized event type, unparseable fields, or zero coordinates are
// dropped per-record; a malformed line does not abort the stream.
func parseRows(r io.Reader, center domain.Coordinate, radiusMiles float64) ([]domain.StormEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var events []domain.StormEvent
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		event, ok := normalizeRow(row, cols)
		if !ok {
			continue
		}
		if radiusMiles > 0 && domain.HaversineMiles(center.Lat, center.Lon, event.Lat, event.Lon) > radiusMiles {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// columns holds the indices of the archive CSV columns we consume.
type columns struct {
	eventType int
	beginLat  int
	beginLon  int
	magnitude int
	beginTime int
}

func mapColumns(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	cols := columns{eventType: -1, beginLat: -1, beginLon: -1, magnitude: -1, beginTime: -1}
	required := map[string]*int{
		"EVENT_TYPE":      &cols.eventType,
		"BEGIN_LAT":       &cols.beginLat,
		"BEGIN_LON":       &cols.beginLon,
		"MAGNITUDE":       &cols.magnitude,
		"BEGIN_DATE_TIME": &cols.beginTime,
	}
	for name, dst := range required {
		i, ok := idx[name]
		if !ok {
			return columns{}, fmt.Errorf("archive csv missing column %s", name)
		}
		*dst = i
	}
	return cols, nil
}

func normalizeRow(row []string, cols columns) (domain.StormEvent, bool) {
	max := cols.eventType
	for _, i := range []int{cols.beginLat, cols.beginLon, cols.magnitude, cols.beginTime} {
		if i > max {
			max = i
		}
	}
	if len(row) <= max {
		return domain.StormEvent{}, false
	}

	eventType, ok := classifyEventType(row[cols.eventType])
	if !ok {
		return domain.StormEvent{}, false
	}

	lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[cols.beginLat]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[cols.beginLon]), 64)
	if errLat != nil || errLon != nil {
		return domain.StormEvent{}, false
	}

	date, err := time.ParseInLocation(beginDateTimeLayout, normalizeMonthCase(strings.TrimSpace(row[cols.beginTime])), domain.Eastern())
	if err != nil {
		return domain.StormEvent{}, false
	}

	var magnitude *float64
	if eventType != domain.EventTornado {
		if m, err := strconv.ParseFloat(strings.TrimSpace(row[cols.magnitude]), 64); err == nil && m > 0 {
			magnitude = domain.Float64(m)
		}
	}

	return domain.NewStormEvent(Source, eventType, date, lat, lon, magnitude, true)
}

// classifyEventType buckets the archive's free-text EVENT_TYPE. Wind is
// deliberately narrow: only convective "thunderstorm wind" rows count, so
// that high-wind and marine-wind records don't pollute canvassing data.
func classifyEventType(raw string) (domain.EventType, bool) {
	t := strings.ToLower(raw)
	switch {
	case strings.Contains(t, "hail"):
		return domain.EventHail, true
	case strings.Contains(t, "tornado"):
		return domain.EventTornado, true
	case strings.Contains(t, "thunderstorm") && strings.Contains(t, "wind"):
		return domain.EventWind, true
	default:
		return "", false
	}
}

// normalizeMonthCase fixes the archive's all-caps month abbreviations
// ("15-APR-26" -> "15-Apr-26") so time.Parse accepts them.
func normalizeMonthCase(s string) string {
	if len(s) < 6 {
		return s
	}
	return s[:4] + strings.ToLower(s[4:6]) + s[6:]
}
