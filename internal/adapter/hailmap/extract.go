package hailmap

import (
	"strconv"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// The provider's payload shape varies by plan tier and endpoint: the same
// logical field can appear under several names. Each logical field has an
// explicit rule table of candidate keys evaluated in priority order, most to
// least location-specific. The first key present wins.

// hailSizeKeys are the candidate keys for hail diameter in inches.
var hailSizeKeys = []string{
	"hailSizeAtAddress",  // modeled size at the registered address
	"hailSizeOneMile",    // max size within one mile
	"hailSizeThreeMiles", // max size within three miles
	"maxHailSize",        // storm-wide maximum
}

// impactDateKeys are the candidate keys for the impact date.
var impactDateKeys = []string{"impactDate", "stormDate", "date"}

var latKeys = []string{"lat", "latitude"}
var lngKeys = []string{"lng", "lon", "longitude"}

// dateLayouts are the formats the provider has been observed to emit.
var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

// probeFloat returns the first candidate key whose value parses as a number.
// Values arrive as JSON numbers or strings depending on the endpoint.
func probeFloat(item map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		raw, present := item[key]
		if !present || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// probeDate returns the first candidate key whose value parses as a date.
func probeDate(item map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		raw, present := item[key]
		if !present {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// normalizeImpacts converts raw ImpactDates items into canonical events.
// Items without a parseable date are dropped; items without coordinates fall
// back to the query point when one is available, and are dropped otherwise.
// The catalog reports hail only, and its radar-modeled sizes are never
// certified.
func normalizeImpacts(items []map[string]any, fallbackCoord *domain.Coordinate) []domain.StormEvent {
	events := make([]domain.StormEvent, 0, len(items))
	for _, item := range items {
		date, ok := probeDate(item, impactDateKeys)
		if !ok {
			continue
		}

		lat, latOK := probeFloat(item, latKeys)
		lng, lngOK := probeFloat(item, lngKeys)
		if (!latOK || !lngOK) && fallbackCoord != nil {
			lat, lng = fallbackCoord.Lat, fallbackCoord.Lon
		}

		var magnitude *float64
		if size, ok := probeFloat(item, hailSizeKeys); ok && size > 0 {
			magnitude = domain.Float64(size)
		}

		event, ok := domain.NewStormEvent(Source, domain.EventHail, date, lat, lng, magnitude, false)
		if !ok {
			continue
		}
		events = append(events, event)
	}
	return events
}
