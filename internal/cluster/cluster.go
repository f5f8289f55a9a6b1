// Package cluster groups normalized storm events into fixed-size geographic
// grid cells and scores the populated cells into ranked hot zones for
// canvassing prioritization.
package cluster

import (
	"math"
	"sort"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// GridDegrees is the cell edge length, roughly five miles at mid-latitudes.
const GridDegrees = 0.0725

// recentWindowDays bounds the recency subset and the recency sub-score.
const recentWindowDays = 90

// Cell is a grid-snapped coordinate bucket holding the events that round to
// it. Cells are created transiently per query and never persisted.
type Cell struct {
	Lat    float64
	Lon    float64
	Events []domain.StormEvent
	Recent []domain.StormEvent // events within the last 90 days
}

// Snap rounds a coordinate onto the cluster grid.
func Snap(v float64) float64 {
	return math.Round(v/GridDegrees) * GridDegrees
}

// Group buckets the events inside box into grid cells. Grouping is a pure
// accumulation into a map keyed by the snapped coordinate: deterministic,
// order-independent, and with no merging across adjacent cells. The returned
// slice is sorted by cell coordinate so output order is stable too.
func Group(events []domain.StormEvent, box domain.BoundingBox) []Cell {
	recentCutoff := domain.Now().AddDate(0, 0, -recentWindowDays)

	type key struct{ lat, lon float64 }
	cells := make(map[key]*Cell)

	for _, e := range events {
		if !box.Contains(e.Lat, e.Lon) {
			continue
		}
		k := key{lat: Snap(e.Lat), lon: Snap(e.Lon)}
		c, ok := cells[k]
		if !ok {
			c = &Cell{Lat: k.lat, Lon: k.lon}
			cells[k] = c
		}
		c.Events = append(c.Events, e)
		if !e.Date.Before(recentCutoff) {
			c.Recent = append(c.Recent, e)
		}
	}

	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		return out[i].Lon < out[j].Lon
	})
	return out
}
