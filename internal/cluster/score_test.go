package cluster

import (
	"fmt"
	"testing"

	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellOf(events ...domain.StormEvent) Cell {
	c := Cell{Lat: Snap(events[0].Lat), Lon: Snap(events[0].Lon), Events: events}
	cutoff := domain.Now().AddDate(0, 0, -recentWindowDays)
	for _, e := range events {
		if !e.Date.Before(cutoff) {
			c.Recent = append(c.Recent, e)
		}
	}
	return c
}

// Richmond scenario: three hail events ({2.5, 1.2, 0.5}in) in one cell within
// the last ten days. Severity 100 (max >= 2.0), recency ~100, frequency 30,
// combined 0.40*100 + 0.35*100 + 0.25*30 = 82.5.
func TestScore_RichmondScenario(t *testing.T) {
	freezeTime(t)

	cell := cellOf(
		hailEvent(t, 37.5407, -77.4360, 2.5, 0),
		hailEvent(t, 37.5410, -77.4355, 1.2, 5),
		hailEvent(t, 37.5405, -77.4365, 0.5, 9),
	)

	zones := Score([]Cell{cell})
	require.Len(t, zones, 1)

	z := zones[0]
	assert.InDelta(t, 83, z.Intensity, 1, "combined score is 82.5 before rounding")
	assert.GreaterOrEqual(t, z.Intensity, 80)
	assert.Contains(t, z.Recommendation, "Hot zone")
	assert.Contains(t, z.Recommendation, "3 storm events")
	assert.Equal(t, 3, z.EventCount)
	assert.InDelta(t, 2.5, z.MaxMagnitude, 0.001)
	assert.InDelta(t, (2.5+1.2+0.5)/3, z.AvgMagnitude, 0.001)
}

func TestScore_NoiseFloorExcluded(t *testing.T) {
	freezeTime(t)

	// One small, stale event: recency 0 (>90 days), severity 20, frequency 10.
	// Combined = 0.35*20 + 0.25*10 = 9.5 -> below the noise floor.
	cell := cellOf(hailEvent(t, 37.5, -77.5, 0.5, 120))

	zones := Score([]Cell{cell})
	assert.Empty(t, zones)
}

func TestScore_RecencyComesFromRecentSubset(t *testing.T) {
	freezeTime(t)

	fresh := hailEvent(t, 37.5, -77.5, 2.5, 1)

	full := cellOf(fresh)
	require.NotEmpty(t, full.Recent)

	hollow := full
	hollow.Recent = nil

	// With the recent subset empty only severity and frequency remain:
	// 0.35*100 + 0.25*10 = 37.5.
	zones := Score([]Cell{hollow})
	require.Len(t, zones, 1)
	assert.Equal(t, 38, zones[0].Intensity)
	assert.Equal(t, fresh.Date, zones[0].LastEvent, "last event still reflects the full history")

	scored := Score([]Cell{full})
	require.Len(t, scored, 1)
	assert.Greater(t, scored[0].Intensity, zones[0].Intensity)
}

func TestScore_EmptyCellsNeverAppear(t *testing.T) {
	freezeTime(t)

	zones := Score([]Cell{{Lat: 37.5, Lon: -77.5}})
	assert.Empty(t, zones)
}

func TestScore_TopTenTruncation(t *testing.T) {
	freezeTime(t)

	var cells []Cell
	for i := 0; i < 15; i++ {
		lat := 37.0 + float64(i)*0.2
		cells = append(cells, cellOf(
			hailEvent(t, lat, -77.5, 2.5, 1),
			hailEvent(t, lat, -77.5, 2.0, 2),
		))
	}

	zones := Score(cells)
	assert.Len(t, zones, 10)
}

func TestScore_SortedDescending(t *testing.T) {
	freezeTime(t)

	hot := cellOf(
		hailEvent(t, 37.0, -77.5, 2.5, 0),
		hailEvent(t, 37.0, -77.5, 2.5, 1),
		hailEvent(t, 37.0, -77.5, 2.5, 2),
	)
	mild := cellOf(hailEvent(t, 38.0, -77.5, 1.0, 40))

	zones := Score([]Cell{mild, hot})
	require.Len(t, zones, 2)
	assert.Greater(t, zones[0].Intensity, zones[1].Intensity)
	assert.InDelta(t, Snap(37.0), zones[0].Center.Lat, 0.0001)
}

func TestScore_MonotonicInSubScores(t *testing.T) {
	freezeTime(t)

	intensity := func(events ...domain.StormEvent) int {
		zones := Score([]Cell{cellOf(events...)})
		require.NotEmpty(t, zones)
		return zones[0].Intensity
	}

	// Frequency: more events, same severity and recency.
	base := intensity(
		hailEvent(t, 37.5, -77.5, 2.0, 1),
		hailEvent(t, 37.5, -77.5, 2.0, 1),
	)
	more := intensity(
		hailEvent(t, 37.5, -77.5, 2.0, 1),
		hailEvent(t, 37.5, -77.5, 2.0, 1),
		hailEvent(t, 37.501, -77.5, 2.0, 1),
		hailEvent(t, 37.502, -77.5, 2.0, 1),
	)
	assert.GreaterOrEqual(t, more, base, "more events must not lower the score")

	// Recency: same events, fresher last date.
	stale := intensity(hailEvent(t, 37.5, -77.5, 2.0, 80))
	fresh := intensity(hailEvent(t, 37.5, -77.5, 2.0, 1))
	assert.GreaterOrEqual(t, fresh, stale, "fresher activity must not lower the score")

	// Severity: same recency and count, bigger hail.
	small := intensity(hailEvent(t, 37.5, -77.5, 0.8, 1))
	big := intensity(hailEvent(t, 37.5, -77.5, 2.2, 1))
	assert.GreaterOrEqual(t, big, small, "larger magnitude must not lower the score")
}

func TestSeverityScore_Steps(t *testing.T) {
	tests := []struct {
		maxMag float64
		hasMag bool
		want   float64
	}{
		{2.5, true, 100},
		{2.0, true, 100},
		{1.5, true, 80},
		{1.0, true, 60},
		{0.75, true, 40},
		{0.5, true, 20},
		{0, false, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max=%.2f has=%t", tt.maxMag, tt.hasMag), func(t *testing.T) {
			assert.Equal(t, tt.want, severityScore(tt.maxMag, tt.hasMag))
		})
	}
}

func TestFrequencyScore_Saturates(t *testing.T) {
	assert.Equal(t, 30.0, frequencyScore(3))
	assert.Equal(t, 100.0, frequencyScore(10))
	assert.Equal(t, 100.0, frequencyScore(25))
}

func TestRecommendation_Tiers(t *testing.T) {
	assert.Contains(t, recommendation(85, 5), "Hot zone")
	assert.Contains(t, recommendation(65, 5), "Strong activity")
	assert.Contains(t, recommendation(45, 5), "Moderate activity")
	assert.Contains(t, recommendation(25, 5), "Low activity")
	assert.Contains(t, recommendation(25, 5), "5 storm events")
}
