package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
)

// userAgent identifies the service to Nominatim, whose usage policy requires
// a descriptive User-Agent.
const userAgent = "storm-intel/1.0"

// NominatimClient queries the OpenStreetMap Nominatim geocoder, supporting
// both structured-field and freeform single-line lookups.
type NominatimClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewNominatimClient creates a nominatim geocoding client.
func NewNominatimClient(timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://nominatim.openstreetmap.org/search",
	}
}

// LookupStructured queries with separate street/city/state/zip fields.
func (c *NominatimClient) LookupStructured(ctx context.Context, addr Address) (domain.Coordinate, bool, error) {
	params := url.Values{
		"street":  {addr.Street},
		"format":  {"json"},
		"limit":   {"1"},
		"country": {"us"},
	}
	if addr.City != "" {
		params.Set("city", addr.City)
	}
	if addr.State != "" {
		params.Set("state", addr.State)
	}
	if addr.Zip != "" {
		params.Set("postalcode", addr.Zip)
	}
	return c.doRequest(ctx, params)
}

// LookupFreeform queries with a single-line address string.
func (c *NominatimClient) LookupFreeform(ctx context.Context, query string) (domain.Coordinate, bool, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	return c.doRequest(ctx, params)
}

func (c *NominatimClient) doRequest(ctx context.Context, params url.Values) (domain.Coordinate, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Coordinate{}, false, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(places) == 0 {
		return domain.Coordinate{}, false, nil
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.Coordinate{}, false, fmt.Errorf("nominatim returned non-numeric coordinates: lat=%q lon=%q", places[0].Lat, places[0].Lon)
	}

	return domain.Coordinate{Lat: lat, Lon: lon}, true, nil
}

// nominatim serializes coordinates as strings.
type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}
