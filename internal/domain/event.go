package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// EventType identifies the kind of storm activity a record describes.
type EventType string

const (
	EventHail    EventType = "hail"
	EventWind    EventType = "wind"
	EventTornado EventType = "tornado"
)

// Severity is the derived impact tier of an event.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// StormEvent is the canonical representation every adapter converges to.
// Magnitude is nil when the source did not report one; that can only happen
// for hail and wind, and in that case Severity is empty as well.
type StormEvent struct {
	ID        string    `json:"id"`
	EventType EventType `json:"type"`
	Date      time.Time `json:"date"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Magnitude *float64  `json:"magnitude,omitempty"` // inches for hail, mph for wind
	Severity  Severity  `json:"severity,omitempty"`
	Source    string    `json:"source"`
	Certified bool      `json:"certified"`
}

// eastern is the reference timezone all event dates are normalized to.
var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata available; EST without DST is close enough for
		// calendar-date normalization.
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Eastern returns the reference timezone for event dates.
func Eastern() *time.Location {
	return eastern
}

// ValidCoordinates reports whether lat/lon form a usable WGS-84 coordinate.
// Zero/zero is rejected: every source in this system uses 0 as its
// missing-coordinate sentinel, and no storm we care about happens in the
// Gulf of Guinea.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DeriveSeverity maps magnitude to a severity tier:
//   - hail: ≥2.0in severe, ≥1.0in moderate, else minor
//   - wind: ≥75mph severe, ≥50mph moderate, else minor
//   - tornado: always severe (magnitude ignored)
//
// Returns empty severity when magnitude is nil for hail/wind — a tier is
// never fabricated for an unreported measurement.
func DeriveSeverity(eventType EventType, magnitude *float64) Severity {
	if eventType == EventTornado {
		return SeveritySevere
	}
	if magnitude == nil {
		return ""
	}

	m := *magnitude
	switch eventType {
	case EventHail:
		switch {
		case m >= 2.0:
			return SeveritySevere
		case m >= 1.0:
			return SeverityModerate
		default:
			return SeverityMinor
		}
	case EventWind:
		switch {
		case m >= 75:
			return SeveritySevere
		case m >= 50:
			return SeverityModerate
		default:
			return SeverityMinor
		}
	default:
		return ""
	}
}

// NewEventID produces a deterministic ID from an event's key fields.
// The same source record always hashes to the same ID, which lets merged
// multi-source results be deduplicated without any shared state.
func NewEventID(source string, eventType EventType, lat, lon float64, t time.Time) string {
	input := fmt.Sprintf("%s|%s|%.4f|%.4f|%d", source, eventType, lat, lon, t.Unix())
	hash := sha256.Sum256([]byte(input))
	return string(eventType) + "-" + hex.EncodeToString(hash[:8])
}

// NewStormEvent assembles and validates a canonical event. It normalizes the
// date to Eastern time, derives severity, and generates the deterministic ID.
// Returns false when the coordinates are unusable — callers drop the record.
func NewStormEvent(source string, eventType EventType, date time.Time, lat, lon float64, magnitude *float64, certified bool) (StormEvent, bool) {
	if !ValidCoordinates(lat, lon) {
		return StormEvent{}, false
	}
	date = date.In(eastern)
	return StormEvent{
		ID:        NewEventID(source, eventType, lat, lon, date),
		EventType: eventType,
		Date:      date,
		Lat:       lat,
		Lon:       lon,
		Magnitude: magnitude,
		Severity:  DeriveSeverity(eventType, magnitude),
		Source:    source,
		Certified: certified,
	}, true
}

// Float64 returns a pointer to v, for optional magnitude literals.
func Float64(v float64) *float64 {
	return &v
}
