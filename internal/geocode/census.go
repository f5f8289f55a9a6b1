package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// CensusClient queries the US Census Bureau geocoder with structured address
// fields. The service is free and keyless but only covers US addresses.
type CensusClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewCensusClient creates a census geocoding client.
func NewCensusClient(timeout time.Duration) *CensusClient {
	return &CensusClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://geocoding.geo.census.gov/geocoder/locations/address",
	}
}

// Lookup resolves a structured address. ok is false when the service returns
// no matches.
func (c *CensusClient) Lookup(ctx context.Context, addr Address) (domain.Coordinate, bool, error) {
	params := url.Values{
		"street":    {addr.Street},
		"benchmark": {"Public_AR_Current"},
		"format":    {"json"},
	}
	if addr.City != "" {
		params.Set("city", addr.City)
	}
	if addr.State != "" {
		params.Set("state", addr.State)
	}
	if addr.Zip != "" {
		params.Set("zip", addr.Zip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("census geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Coordinate{}, false, fmt.Errorf("census API error: status %d: %s", resp.StatusCode, body)
	}

	var payload censusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("decode census response: %w", err)
	}

	if len(payload.Result.AddressMatches) == 0 {
		return domain.Coordinate{}, false, nil
	}

	m := payload.Result.AddressMatches[0]
	// Census reports x=longitude, y=latitude.
	return domain.Coordinate{Lat: m.Coordinates.Y, Lon: m.Coordinates.X}, true, nil
}

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}
