package nws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointsBody = `{"properties":{"gridId":"AKQ","forecastZone":"https://api.weather.gov/zones/forecast/VAZ048"}}`

func testAlertsClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options{BaseURL: baseURL, Clock: clockwork.NewFakeClock()})
}

func TestFetchStormWarnings_TwoStepLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/points/37.5407,-77.4360":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(pointsBody))
		case r.URL.Path == "/alerts":
			assert.Equal(t, "VAZ048", r.URL.Query().Get("zone"))
			assert.NotEmpty(t, r.URL.Query().Get("start"))
			_, _ = w.Write([]byte(`{"features":[
				{"properties":{"event":"Severe Thunderstorm Warning","severity":"Severe","onset":"2026-06-15T18:00:00Z"}},
				{"properties":{"event":"Tornado Warning","severity":"Extreme","onset":"2026-06-15T18:30:00Z"}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	events, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventWind, events[0].EventType)
	assert.Equal(t, domain.EventTornado, events[1].EventType)
	for _, e := range events {
		assert.Equal(t, Source, e.Source)
		assert.False(t, e.Certified)
		assert.InDelta(t, 37.5407, e.Lat, 0.0001, "alerts inherit the queried coordinate")
	}
}

func TestFetchStormWarnings_Alert404IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/alerts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(pointsBody))
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	events, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.NoError(t, err)
	assert.Empty(t, events, "404 from the alert endpoint means zero alerts, not an error")
}

func TestFetchStormWarnings_Points404IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	events, err := c.FetchStormWarnings(context.Background(), 60.0, -150.0, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFetchStormWarnings_ServerErrorDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	events, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.Error(t, err)
	assert.Empty(t, events)
}

func TestFetchStormWarnings_CachesResults(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/alerts" {
			calls++
			_, _ = w.Write([]byte(`{"features":[{"properties":{"event":"Tornado Watch","severity":"Moderate","onset":"2026-06-15T18:00:00Z"}}]}`))
			return
		}
		_, _ = w.Write([]byte(pointsBody))
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	first, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.NoError(t, err)
	second, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestFetchStormWarnings_CacheSeparatesWindows(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/alerts" {
			calls++
			_, _ = w.Write([]byte(`{"features":[{"properties":{"event":"Tornado Watch","severity":"Moderate","onset":"2026-06-15T18:00:00Z"}}]}`))
			return
		}
		_, _ = w.Write([]byte(pointsBody))
	}))
	defer srv.Close()

	c := testAlertsClient(t, srv.URL)

	_, err := c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 1)
	require.NoError(t, err)
	_, err = c.FetchStormWarnings(context.Background(), 37.5407, -77.4360, 60)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "different lookback windows must not share a cache entry")
}

func TestStormRelevant(t *testing.T) {
	tests := []struct {
		name     string
		event    string
		severity string
		want     bool
	}{
		{"allow-listed warning", "Severe Thunderstorm Warning", "Moderate", true},
		{"allow-listed watch", "Tornado Watch", "Unknown", true},
		{"escalated by severity", "Special Weather Statement", "Severe", true},
		{"escalated by extreme", "Hurricane Warning", "Extreme", true},
		{"irrelevant category", "Dense Fog Advisory", "Minor", false},
		{"case-insensitive match", "tornado warning", "minor", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stormRelevant(tt.event, tt.severity))
		})
	}
}

func TestNormalizeAlerts_SkipsUndatedFeatures(t *testing.T) {
	features := []alertFeature{
		{Properties: alertProperties{Event: "Tornado Warning"}}, // no onset or effective
		{Properties: alertProperties{Event: "Tornado Warning", Effective: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}},
	}

	events := normalizeAlerts(features, 37.54, -77.43)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTornado, events[0].EventType)
}
