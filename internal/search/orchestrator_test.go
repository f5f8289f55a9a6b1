package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/canvassiq/storm-intel/internal/adapter/hailmap"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/geocode"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	monitor      hailmap.Monitor
	monitorErr   error
	markerEvents []domain.StormEvent
	coordEvents  []domain.StormEvent
	err          error
	markerCalls  int
	coordCalls   int
}

func (f *fakeCatalog) CreateMonitor(_ context.Context, _ geocode.Address) (hailmap.Monitor, error) {
	return f.monitor, f.monitorErr
}

func (f *fakeCatalog) SearchByMarker(_ context.Context, _ string, _ int) ([]domain.StormEvent, error) {
	f.markerCalls++
	return f.markerEvents, f.err
}

func (f *fakeCatalog) SearchByCoordinates(_ context.Context, _, _, _ float64, _ int) ([]domain.StormEvent, error) {
	f.coordCalls++
	return f.coordEvents, f.err
}

type fakeArchive struct {
	events []domain.StormEvent
	err    error
	calls  int
}

func (f *fakeArchive) Search(_ context.Context, _ domain.Coordinate, _ float64, _ int) ([]domain.StormEvent, error) {
	f.calls++
	return f.events, f.err
}

type fakeAlerts struct {
	events []domain.StormEvent
	err    error
	calls  int
}

func (f *fakeAlerts) FetchStormWarnings(_ context.Context, _, _ float64, _ int) ([]domain.StormEvent, error) {
	f.calls++
	return f.events, f.err
}

type fakePublisher struct {
	published [][]domain.StormEvent
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, events []domain.StormEvent) error {
	f.published = append(f.published, events)
	return f.err
}

func testEvent(t *testing.T, source string, eventType domain.EventType, lat, lon float64, daysAgo int, magnitude *float64) domain.StormEvent {
	t.Helper()
	date := domain.Now().AddDate(0, 0, -daysAgo)
	e, ok := domain.NewStormEvent(source, eventType, date, lat, lon, magnitude, source == "archive")
	require.True(t, ok)
	return e
}

type fakeGeocoder struct {
	coord domain.Coordinate
	found bool
	calls int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ geocode.Address) (domain.Coordinate, bool) {
	f.calls++
	return f.coord, f.found
}

func testOrchestrator(catalog Catalog, archive Archive, alerts Alerts, publisher Publisher) *Orchestrator {
	return testOrchestratorWithGeocoder(catalog, archive, alerts, &fakeGeocoder{}, publisher)
}

func testOrchestratorWithGeocoder(catalog Catalog, archive Archive, alerts Alerts, geocoder geocode.Geocoder, publisher Publisher) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(catalog, archive, alerts, geocoder, publisher, logger, observability.NewMetricsForTesting())
}

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func TestSearchByCoordinates_MergesAllSources(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{coordEvents: []domain.StormEvent{
		testEvent(t, "catalog", domain.EventHail, 37.541, -77.436, 10, domain.Float64(1.5)),
	}}
	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventWind, 37.545, -77.440, 30, domain.Float64(60)),
		testEvent(t, "archive", domain.EventHail, 37.550, -77.430, 45, domain.Float64(2.25)),
	}}
	alerts := &fakeAlerts{events: []domain.StormEvent{
		testEvent(t, "alerts", domain.EventTornado, 37.541, -77.436, 2, nil),
	}}

	o := testOrchestrator(catalog, archive, alerts, nil)

	result, err := o.SearchByCoordinates(context.Background(), 37.5407, -77.4360, 10, 12)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalCount)
	assert.Len(t, result.Events, 4)
	assert.Equal(t, map[string]SourceStatus{
		"catalog": StatusOK,
		"archive": StatusOK,
		"alerts":  StatusOK,
	}, result.Sources)
	assert.Equal(t, 37.5407, result.Query.Lat)
	assert.Equal(t, 10.0, result.Query.RadiusMiles)
	assert.Equal(t, 12, result.Query.Months)
}

func TestSearchByCoordinates_FailedSourceDoesNotSinkOthers(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{err: fmt.Errorf("provider down")}
	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.545, -77.440, 30, domain.Float64(1.0)),
	}}
	alerts := &fakeAlerts{}

	o := testOrchestrator(catalog, archive, alerts, nil)

	result, err := o.SearchByCoordinates(context.Background(), 37.5407, -77.4360, 10, 12)
	require.NoError(t, err, "a failed source degrades, never aborts")

	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, StatusError, result.Sources["catalog"])
	assert.Equal(t, StatusOK, result.Sources["archive"])
	assert.Equal(t, StatusOK, result.Sources["alerts"])
}

func TestSearchByMarker_OnlyQueriesCatalog(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{markerEvents: []domain.StormEvent{
		testEvent(t, "catalog", domain.EventHail, 37.541, -77.436, 10, domain.Float64(1.5)),
	}}
	archive := &fakeArchive{}
	alerts := &fakeAlerts{}

	o := testOrchestrator(catalog, archive, alerts, nil)

	result, err := o.SearchByMarker(context.Background(), "mk-1", 12)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "mk-1", result.Query.MarkerID)
	assert.Equal(t, StatusSkipped, result.Sources["archive"])
	assert.Equal(t, StatusSkipped, result.Sources["alerts"])
	assert.Zero(t, archive.calls)
	assert.Zero(t, alerts.calls)
}

func TestSearchByAddress_ResolvesMonitorThenFansOut(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{
		monitor: hailmap.Monitor{MarkerID: "mk-9", Coord: &domain.Coordinate{Lat: 37.5407, Lon: -77.4360}},
	}
	archive := &fakeArchive{}
	alerts := &fakeAlerts{}

	o := testOrchestrator(catalog, archive, alerts, nil)

	addr := geocode.Address{Street: "123 Main St", City: "Richmond", State: "VA"}
	result, monitor, err := o.SearchByAddress(context.Background(), addr, 10, 12)
	require.NoError(t, err)

	assert.Equal(t, "mk-9", monitor.MarkerID)
	assert.Equal(t, "123 Main St, Richmond, VA", result.Query.Address)
	assert.Equal(t, 1, catalog.coordCalls)
	assert.Equal(t, 1, archive.calls)
	assert.Equal(t, 1, alerts.calls)
}

func TestSearchByAddress_NoCoordinatesFallsBackToMarker(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{monitor: hailmap.Monitor{MarkerID: "mk-9"}}
	archive := &fakeArchive{}
	alerts := &fakeAlerts{}

	o := testOrchestrator(catalog, archive, alerts, nil)

	result, _, err := o.SearchByAddress(context.Background(), geocode.Address{Street: "123 Main St"}, 10, 12)
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.markerCalls)
	assert.Zero(t, archive.calls, "no coordinates means no archive query")
	assert.Equal(t, StatusSkipped, result.Sources["archive"])
}

func TestSearchByAddress_MonitorFailureFallsBackToGeocoder(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{monitorErr: fmt.Errorf("catalog API error: status 500")}
	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.5410, -77.4360, 5, domain.Float64(1.5)),
	}}
	alerts := &fakeAlerts{}
	geocoder := &fakeGeocoder{coord: domain.Coordinate{Lat: 37.5407, Lon: -77.4360}, found: true}

	o := testOrchestratorWithGeocoder(catalog, archive, alerts, geocoder, nil)

	result, monitor, err := o.SearchByAddress(context.Background(), geocode.Address{Street: "123 Main St", City: "Richmond", State: "VA"}, 10, 12)
	require.NoError(t, err, "a down catalog degrades the search, it does not abort it")

	assert.Equal(t, 1, geocoder.calls)
	assert.Equal(t, 1, archive.calls)
	assert.Equal(t, 1, alerts.calls)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, StatusError, result.Sources["catalog"])
	assert.Equal(t, "123 Main St, Richmond, VA", result.Query.Address)
	assert.Empty(t, monitor.MarkerID)
}

func TestSearchByAddress_MonitorAndGeocodeFailurePropagates(t *testing.T) {
	catalog := &fakeCatalog{monitorErr: fmt.Errorf("catalog API error: status 500")}
	archive := &fakeArchive{}

	o := testOrchestrator(catalog, archive, &fakeAlerts{}, nil)

	_, _, err := o.SearchByAddress(context.Background(), geocode.Address{Street: "123 Main St"}, 10, 12)
	require.Error(t, err)
	assert.Zero(t, archive.calls)
}

func TestHotZonesAround_ClustersAndScores(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.5410, -77.4360, 5, domain.Float64(2.25)),
		testEvent(t, "archive", domain.EventHail, 37.5415, -77.4355, 5, domain.Float64(1.75)),
		testEvent(t, "archive", domain.EventWind, 37.5412, -77.4362, 10, domain.Float64(80)),
	}}

	o := testOrchestrator(&fakeCatalog{}, archive, &fakeAlerts{}, nil)

	zones, sources := o.HotZonesAround(context.Background(), domain.Coordinate{Lat: 37.5407, Lon: -77.4360}, 10, 12)

	require.NotEmpty(t, zones)
	assert.Equal(t, StatusOK, sources["archive"])
	assert.GreaterOrEqual(t, zones[0].Intensity, 60)
	assert.Equal(t, 3, zones[0].EventCount)
}

func TestHotZonesInBox_FiltersByBox(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.5410, -77.4360, 5, domain.Float64(2.25)),
		testEvent(t, "archive", domain.EventHail, 39.0000, -76.0000, 5, domain.Float64(2.25)), // outside box
	}}

	o := testOrchestrator(&fakeCatalog{}, archive, &fakeAlerts{}, nil)

	box := domain.BoundingBox{MinLat: 37.4, MaxLat: 37.7, MinLon: -77.6, MaxLon: -77.3}
	zones, _ := o.HotZonesInBox(context.Background(), box, 12)

	require.Len(t, zones, 1)
	assert.Equal(t, 1, zones[0].EventCount)
}

func TestSearch_PublishesMergedEvents(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.5410, -77.4360, 5, domain.Float64(1.5)),
	}}
	publisher := &fakePublisher{}

	o := testOrchestrator(&fakeCatalog{}, archive, &fakeAlerts{}, publisher)

	_, err := o.SearchByCoordinates(context.Background(), 37.5407, -77.4360, 10, 12)
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	assert.Len(t, publisher.published[0], 1)
}

func TestSearch_PublishFailureDoesNotFailSearch(t *testing.T) {
	freezeTime(t, time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC))

	archive := &fakeArchive{events: []domain.StormEvent{
		testEvent(t, "archive", domain.EventHail, 37.5410, -77.4360, 5, domain.Float64(1.5)),
	}}
	publisher := &fakePublisher{err: fmt.Errorf("broker unreachable")}

	o := testOrchestrator(&fakeCatalog{}, archive, &fakeAlerts{}, publisher)

	result, err := o.SearchByCoordinates(context.Background(), 37.5407, -77.4360, 10, 12)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
}
