// Package search composes the event-source adapters into unified storm
// queries. A search fans out to every relevant source concurrently, merges
// whatever came back, and reports per-source status so callers can tell
// "no storms" apart from "source failed". Hot-zone queries run the merged
// events through grid clustering and scoring.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvassiq/storm-intel/internal/adapter/hailmap"
	"github.com/canvassiq/storm-intel/internal/cluster"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/geocode"
	"github.com/canvassiq/storm-intel/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Catalog is the commercial hail-catalog adapter.
type Catalog interface {
	CreateMonitor(ctx context.Context, addr geocode.Address) (hailmap.Monitor, error)
	SearchByMarker(ctx context.Context, markerID string, months int) ([]domain.StormEvent, error)
	SearchByCoordinates(ctx context.Context, lat, lon, radiusMiles float64, months int) ([]domain.StormEvent, error)
}

// Archive is the historical storm-archive adapter.
type Archive interface {
	Search(ctx context.Context, center domain.Coordinate, radiusMiles float64, months int) ([]domain.StormEvent, error)
}

// Alerts is the real-time weather-alert adapter.
type Alerts interface {
	FetchStormWarnings(ctx context.Context, lat, lon float64, months int) ([]domain.StormEvent, error)
}

// Publisher emits merged events for downstream consumers. Optional.
type Publisher interface {
	Publish(ctx context.Context, events []domain.StormEvent) error
}

// SourceStatus reports how one source fared in a search.
type SourceStatus string

const (
	StatusOK      SourceStatus = "ok"
	StatusError   SourceStatus = "error"
	StatusSkipped SourceStatus = "skipped"
)

// Source names used as status keys and event Source values.
const (
	sourceCatalog = "catalog"
	sourceArchive = "archive"
	sourceAlerts  = "alerts"
)

// Query echoes the parameters a search resolved to.
type Query struct {
	MarkerID    string  `json:"markerId,omitempty"`
	Address     string  `json:"address,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	RadiusMiles float64 `json:"radiusMiles,omitempty"`
	Months      int     `json:"months"`
}

// Result is a merged multi-source search outcome.
type Result struct {
	Events     []domain.StormEvent     `json:"events"`
	TotalCount int                     `json:"totalCount"`
	Query      Query                   `json:"query"`
	Sources    map[string]SourceStatus `json:"sources"`
}

// Orchestrator fans searches out across the adapters.
type Orchestrator struct {
	catalog   Catalog
	archive   Archive
	alerts    Alerts
	geocoder  geocode.Geocoder
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Orchestrator. publisher may be nil when event publishing
// is disabled.
func New(catalog Catalog, archive Archive, alerts Alerts, geocoder geocode.Geocoder, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		archive:   archive,
		alerts:    alerts,
		geocoder:  geocoder,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness reports whether every source adapter is wired.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if o.catalog == nil || o.archive == nil || o.alerts == nil {
		return errors.New("not all source adapters are configured")
	}
	return nil
}

// SearchByMarker looks up events for a previously registered catalog marker.
// Only the catalog can resolve a marker, so the other sources are skipped.
func (o *Orchestrator) SearchByMarker(ctx context.Context, markerID string, months int) (Result, error) {
	start := time.Now()
	defer o.observeSearch(start)

	events, err := o.catalog.SearchByMarker(ctx, markerID, months)
	result := Result{
		Events:     events,
		TotalCount: len(events),
		Query:      Query{MarkerID: markerID, Months: months},
		Sources: map[string]SourceStatus{
			sourceCatalog: statusFor(err),
			sourceArchive: StatusSkipped,
			sourceAlerts:  StatusSkipped,
		},
	}
	if err != nil {
		o.logger.Warn("catalog marker search failed", "marker_id", markerID, "error", err)
	}
	o.publish(ctx, result.Events)
	return result, nil
}

// SearchByAddress registers a catalog monitor for the address, then runs a
// coordinate search around the resolved point. The monitor is returned so
// callers can reuse its marker id for cheaper future lookups.
func (o *Orchestrator) SearchByAddress(ctx context.Context, addr geocode.Address, radiusMiles float64, months int) (Result, hailmap.Monitor, error) {
	monitor, err := o.catalog.CreateMonitor(ctx, addr)
	if err != nil {
		// The catalog is down, not the search. Geocode the address
		// ourselves and keep the remaining sources in play.
		o.logger.Warn("catalog monitor registration failed", "address", addr.Freeform(), "error", err)
		coord, ok := o.geocoder.Geocode(ctx, addr)
		if !ok {
			return Result{}, hailmap.Monitor{}, fmt.Errorf("register monitor: %w", err)
		}
		result, searchErr := o.SearchByCoordinates(ctx, coord.Lat, coord.Lon, radiusMiles, months)
		result.Sources[sourceCatalog] = StatusError
		result.Query.Address = addr.Freeform()
		return result, hailmap.Monitor{}, searchErr
	}

	var result Result
	if monitor.Coord != nil {
		result, err = o.SearchByCoordinates(ctx, monitor.Coord.Lat, monitor.Coord.Lon, radiusMiles, months)
	} else {
		// The provider and the geocoder both failed to place the address.
		// Marker lookups still work, so degrade to a catalog-only search.
		result, err = o.SearchByMarker(ctx, monitor.MarkerID, months)
	}
	result.Query.Address = addr.Freeform()
	return result, monitor, err
}

// SearchByCoordinates fans out to all three sources around a point.
func (o *Orchestrator) SearchByCoordinates(ctx context.Context, lat, lon, radiusMiles float64, months int) (Result, error) {
	start := time.Now()
	defer o.observeSearch(start)

	events, sources := o.fanOut(ctx, domain.Coordinate{Lat: lat, Lon: lon}, radiusMiles, months)
	result := Result{
		Events:     events,
		TotalCount: len(events),
		Query:      Query{Lat: lat, Lon: lon, RadiusMiles: radiusMiles, Months: months},
		Sources:    sources,
	}
	o.publish(ctx, result.Events)
	return result, nil
}

// HotZonesInBox clusters and scores events inside an explicit bounding box.
func (o *Orchestrator) HotZonesInBox(ctx context.Context, box domain.BoundingBox, months int) ([]cluster.HotZone, map[string]SourceStatus) {
	center := box.Center()
	radius := domain.HaversineMiles(center.Lat, center.Lon, box.MaxLat, box.MaxLon)
	return o.hotZones(ctx, center, radius, box, months)
}

// HotZonesAround clusters and scores events around a center point, with the
// radius converted to a bounding box at roughly 69 miles per degree.
func (o *Orchestrator) HotZonesAround(ctx context.Context, center domain.Coordinate, radiusMiles float64, months int) ([]cluster.HotZone, map[string]SourceStatus) {
	box := domain.BoxAround(center, radiusMiles)
	return o.hotZones(ctx, center, radiusMiles, box, months)
}

func (o *Orchestrator) hotZones(ctx context.Context, center domain.Coordinate, radiusMiles float64, box domain.BoundingBox, months int) ([]cluster.HotZone, map[string]SourceStatus) {
	start := time.Now()
	defer o.observeSearch(start)

	events, sources := o.fanOut(ctx, center, radiusMiles, months)
	zones := cluster.Score(cluster.Group(events, box))
	o.metrics.HotZonesPerQuery.Observe(float64(len(zones)))
	return zones, sources
}

// fanOut queries all three sources concurrently and merges whatever
// succeeded. A failed source contributes an empty slice and an error status;
// it never sinks the search.
func (o *Orchestrator) fanOut(ctx context.Context, center domain.Coordinate, radiusMiles float64, months int) ([]domain.StormEvent, map[string]SourceStatus) {
	var catalogEvents, archiveEvents, alertEvents []domain.StormEvent
	var catalogErr, archiveErr, alertErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		catalogEvents, catalogErr = o.catalog.SearchByCoordinates(gctx, center.Lat, center.Lon, radiusMiles, months)
		return nil
	})
	g.Go(func() error {
		archiveEvents, archiveErr = o.archive.Search(gctx, center, radiusMiles, months)
		return nil
	})
	g.Go(func() error {
		alertEvents, alertErr = o.alerts.FetchStormWarnings(gctx, center.Lat, center.Lon, months)
		return nil
	})
	_ = g.Wait()

	for source, err := range map[string]error{
		sourceCatalog: catalogErr,
		sourceArchive: archiveErr,
		sourceAlerts:  alertErr,
	} {
		if err != nil {
			o.logger.Warn("source search failed", "source", source, "error", err)
		}
	}

	merged := make([]domain.StormEvent, 0, len(catalogEvents)+len(archiveEvents)+len(alertEvents))
	merged = append(merged, catalogEvents...)
	merged = append(merged, archiveEvents...)
	merged = append(merged, alertEvents...)

	return merged, map[string]SourceStatus{
		sourceCatalog: statusFor(catalogErr),
		sourceArchive: statusFor(archiveErr),
		sourceAlerts:  statusFor(alertErr),
	}
}

// publish hands merged events to the downstream publisher when one is wired.
// Publish failures are logged, never surfaced to the search caller.
func (o *Orchestrator) publish(ctx context.Context, events []domain.StormEvent) {
	if o.publisher == nil || len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events); err != nil {
		o.logger.Warn("event publish failed", "count", len(events), "error", err)
	}
}

func (o *Orchestrator) observeSearch(start time.Time) {
	o.metrics.SearchDuration.Observe(time.Since(start).Seconds())
}

func statusFor(err error) SourceStatus {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
