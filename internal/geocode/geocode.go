// Package geocode resolves street addresses to coordinates through a
// provider chain: the US Census Bureau geocoder first, then Nominatim with
// structured fields, then Nominatim with a freeform single-line query. The
// first non-empty match wins. There are no retries beyond the chain — each
// address is already attempted against every provider once.
package geocode

import (
	"context"
	"log/slog"
	"strings"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// Address is a structured US street address.
type Address struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Freeform renders the address as a single comma-separated line.
func (a Address) Freeform() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// Geocoder resolves an address to coordinates. ok is false when no provider
// produced a match.
type Geocoder interface {
	Geocode(ctx context.Context, addr Address) (domain.Coordinate, bool)
}

// Chain tries the census geocoder, then nominatim structured, then nominatim
// freeform. Provider errors are absorbed and logged; exhaustion surfaces as
// a not-found result that the caller decides how to handle.
type Chain struct {
	census    *CensusClient
	nominatim *NominatimClient
	logger    *slog.Logger
}

// NewChain builds the standard provider chain.
func NewChain(census *CensusClient, nominatim *NominatimClient, logger *slog.Logger) *Chain {
	return &Chain{census: census, nominatim: nominatim, logger: logger}
}

func (c *Chain) Geocode(ctx context.Context, addr Address) (domain.Coordinate, bool) {
	coord, ok, err := c.census.Lookup(ctx, addr)
	if err != nil {
		c.logger.Warn("census geocode failed", "street", addr.Street, "error", err)
	}
	if ok {
		return coord, true
	}

	coord, ok, err = c.nominatim.LookupStructured(ctx, addr)
	if err != nil {
		c.logger.Warn("nominatim structured geocode failed", "street", addr.Street, "error", err)
	}
	if ok {
		return coord, true
	}

	coord, ok, err = c.nominatim.LookupFreeform(ctx, addr.Freeform())
	if err != nil {
		c.logger.Warn("nominatim freeform geocode failed", "query", addr.Freeform(), "error", err)
	}
	if ok {
		return coord, true
	}

	c.logger.Warn("geocoding exhausted all providers", "street", addr.Street, "city", addr.City)
	return domain.Coordinate{}, false
}
