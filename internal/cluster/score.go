package cluster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// Sub-score weights. Any replacement scoring model must keep each sub-score
// and the combined intensity in [0,100] and preserve these weight semantics.
const (
	weightRecency   = 0.40
	weightSeverity  = 0.35
	weightFrequency = 0.25
)

// noiseFloor is the combined intensity at or below which a cell is discarded.
const noiseFloor = 20

// maxZones caps the ranked output.
const maxZones = 10

// HotZone is a scored grid cell.
type HotZone struct {
	Center         domain.Coordinate   `json:"center"`
	Intensity      int                 `json:"intensity"`
	EventCount     int                 `json:"eventCount"`
	AvgMagnitude   float64             `json:"avgMagnitude"`
	MaxMagnitude   float64             `json:"maxMagnitude"`
	LastEvent      time.Time           `json:"lastEvent"`
	RadiusMiles    float64             `json:"radiusMiles"`
	Recommendation string              `json:"recommendation"`
	Events         []domain.StormEvent `json:"events"`
}

// Score ranks populated cells into hot zones: three 0-100 sub-scores
// (recency, severity, frequency) combined with fixed weights, cells at or
// below the noise floor dropped, the rest sorted descending and truncated to
// the top ten. The model is a deliberately simple, auditable heuristic.
func Score(cells []Cell) []HotZone {
	now := domain.Now()

	zones := make([]HotZone, 0, len(cells))
	for _, cell := range cells {
		if len(cell.Events) == 0 {
			continue
		}

		last := lastEventDate(cell.Events)
		avgMag, maxMag, hasMag := magnitudeStats(cell.Events)

		// Recency is judged on the recent subset only. A cell whose
		// activity all predates the window scores zero here no matter
		// how close to the cutoff its newest event sits.
		recency := 0.0
		if len(cell.Recent) > 0 {
			recency = recencyScore(now, lastEventDate(cell.Recent))
		}
		severity := severityScore(maxMag, hasMag)
		frequency := frequencyScore(len(cell.Events))

		combined := weightRecency*recency + weightSeverity*severity + weightFrequency*frequency
		intensity := int(math.Round(combined))
		if intensity <= noiseFloor {
			continue
		}

		zones = append(zones, HotZone{
			Center:         domain.Coordinate{Lat: cell.Lat, Lon: cell.Lon},
			Intensity:      intensity,
			EventCount:     len(cell.Events),
			AvgMagnitude:   avgMag,
			MaxMagnitude:   maxMag,
			LastEvent:      last,
			RadiusMiles:    GridDegrees * domain.MilesPerDegree / 2,
			Recommendation: recommendation(intensity, len(cell.Events)),
			Events:         cell.Events,
		})
	}

	sort.Slice(zones, func(i, j int) bool {
		if zones[i].Intensity != zones[j].Intensity {
			return zones[i].Intensity > zones[j].Intensity
		}
		if zones[i].EventCount != zones[j].EventCount {
			return zones[i].EventCount > zones[j].EventCount
		}
		if zones[i].Center.Lat != zones[j].Center.Lat {
			return zones[i].Center.Lat < zones[j].Center.Lat
		}
		return zones[i].Center.Lon < zones[j].Center.Lon
	})

	if len(zones) > maxZones {
		zones = zones[:maxZones]
	}
	return zones
}

// recencyScore decays linearly from 100 at zero days to 0 at 90 days.
func recencyScore(now, last time.Time) float64 {
	days := now.Sub(last).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Max(0, 100-(days/recentWindowDays)*100)
}

// severityScore is a step function on the cell's maximum magnitude. Cells
// with no magnitude data at all score 0, not the minimum step.
func severityScore(maxMag float64, hasMag bool) float64 {
	if !hasMag {
		return 0
	}
	switch {
	case maxMag >= 2.0:
		return 100
	case maxMag >= 1.5:
		return 80
	case maxMag >= 1.0:
		return 60
	case maxMag >= 0.75:
		return 40
	default:
		return 20
	}
}

// frequencyScore saturates at ten events.
func frequencyScore(count int) float64 {
	return math.Min(100, float64(count)/10*100)
}

func lastEventDate(events []domain.StormEvent) time.Time {
	var last time.Time
	for _, e := range events {
		if e.Date.After(last) {
			last = e.Date
		}
	}
	return last
}

func magnitudeStats(events []domain.StormEvent) (avg, max float64, has bool) {
	var sum float64
	var n int
	for _, e := range events {
		if e.Magnitude == nil {
			continue
		}
		m := *e.Magnitude
		sum += m
		n++
		if m > max {
			max = m
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return sum / float64(n), max, true
}

func recommendation(intensity, eventCount int) string {
	switch {
	case intensity >= 80:
		return fmt.Sprintf("Hot zone: %d storm events on record. Prioritize canvassing this area.", eventCount)
	case intensity >= 60:
		return fmt.Sprintf("Strong activity area: %d storm events on record. Schedule canvassing soon.", eventCount)
	case intensity >= 40:
		return fmt.Sprintf("Moderate activity: %d storm events on record. Worth covering when nearby.", eventCount)
	default:
		return fmt.Sprintf("Low activity: %d storm events on record.", eventCount)
	}
}
