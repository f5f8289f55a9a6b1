// Package httpapi exposes storm searches and hot-zone queries over HTTP,
// alongside the health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/canvassiq/storm-intel/internal/adapter/hailmap"
	"github.com/canvassiq/storm-intel/internal/cluster"
	"github.com/canvassiq/storm-intel/internal/domain"
	"github.com/canvassiq/storm-intel/internal/geocode"
	"github.com/canvassiq/storm-intel/internal/search"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMonths = 12
	maxMonths     = 60
	defaultRadius = 10.0
	maxRadius     = 100.0
)

// Searcher is the orchestrated search surface the API fronts.
type Searcher interface {
	SearchByMarker(ctx context.Context, markerID string, months int) (search.Result, error)
	SearchByAddress(ctx context.Context, addr geocode.Address, radiusMiles float64, months int) (search.Result, hailmap.Monitor, error)
	SearchByCoordinates(ctx context.Context, lat, lon, radiusMiles float64, months int) (search.Result, error)
	HotZonesInBox(ctx context.Context, box domain.BoundingBox, months int) ([]cluster.HotZone, map[string]search.SourceStatus)
	HotZonesAround(ctx context.Context, center domain.Coordinate, radiusMiles float64, months int) ([]cluster.HotZone, map[string]search.SourceStatus)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the search API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	searcher   Searcher
	logger     *slog.Logger
}

// NewServer creates the API server. Routes live under /api/v1.
func NewServer(addr string, searcher Searcher, ready ReadinessChecker, logger *slog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute, // archive-backed searches can be slow on a cold cache
			IdleTimeout:  60 * time.Second,
		},
		searcher: searcher,
		logger:   logger,
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/hotzones", s.handleHotZones).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", handleReady(ready)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// searchResponse wraps a search result, with the monitor attached for
// address searches so callers can reuse the marker id.
type searchResponse struct {
	search.Result
	Monitor *monitorInfo `json:"monitor,omitempty"`
}

type monitorInfo struct {
	MarkerID string             `json:"markerId"`
	Coord    *domain.Coordinate `json:"coord,omitempty"`
}

// handleSearch dispatches on the query shape: a marker id, a lat/lon pair,
// or a structured street address.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	months, err := monthsParam(q.Get("months"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if marker := q.Get("marker"); marker != "" {
		result, err := s.searcher.SearchByMarker(r.Context(), marker, months)
		if err != nil {
			s.logger.Error("marker search failed", "marker_id", marker, "error", err)
			writeError(w, http.StatusBadGateway, "marker search failed")
			return
		}
		writeJSON(w, http.StatusOK, searchResponse{Result: result})
		return
	}

	if q.Get("lat") != "" || q.Get("lon") != "" {
		lat, lon, ok := coordParams(q.Get("lat"), q.Get("lon"))
		if !ok {
			writeError(w, http.StatusBadRequest, "lat and lon must both be valid coordinates")
			return
		}
		radius, err := radiusParam(q.Get("radius"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := s.searcher.SearchByCoordinates(r.Context(), lat, lon, radius, months)
		if err != nil {
			s.logger.Error("coordinate search failed", "lat", lat, "lon", lon, "error", err)
			writeError(w, http.StatusBadGateway, "coordinate search failed")
			return
		}
		writeJSON(w, http.StatusOK, searchResponse{Result: result})
		return
	}

	if street := q.Get("street"); street != "" {
		addr := geocode.Address{
			Street: street,
			City:   q.Get("city"),
			State:  q.Get("state"),
			Zip:    q.Get("zip"),
		}
		radius, err := radiusParam(q.Get("radius"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, monitor, err := s.searcher.SearchByAddress(r.Context(), addr, radius, months)
		if err != nil {
			s.logger.Error("address search failed", "street", addr.Street, "error", err)
			writeError(w, http.StatusBadGateway, "address search failed")
			return
		}
		writeJSON(w, http.StatusOK, searchResponse{
			Result:  result,
			Monitor: &monitorInfo{MarkerID: monitor.MarkerID, Coord: monitor.Coord},
		})
		return
	}

	writeError(w, http.StatusBadRequest, "one of marker, lat/lon, or street is required")
}

// hotZonesResponse carries the ranked zones plus per-source status.
type hotZonesResponse struct {
	Zones   []cluster.HotZone              `json:"zones"`
	Sources map[string]search.SourceStatus `json:"sources"`
}

// handleHotZones accepts either bbox=minLat,minLon,maxLat,maxLon or a
// lat/lon center with an optional radius.
func (s *Server) handleHotZones(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	months, err := monthsParam(q.Get("months"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if bbox := q.Get("bbox"); bbox != "" {
		box, err := parseBBox(bbox)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zones, sources := s.searcher.HotZonesInBox(r.Context(), box, months)
		writeJSON(w, http.StatusOK, hotZonesResponse{Zones: zones, Sources: sources})
		return
	}

	lat, lon, ok := coordParams(q.Get("lat"), q.Get("lon"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bbox or a lat/lon center is required")
		return
	}
	radius, err := radiusParam(q.Get("radius"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zones, sources := s.searcher.HotZonesAround(r.Context(), domain.Coordinate{Lat: lat, Lon: lon}, radius, months)
	writeJSON(w, http.StatusOK, hotZonesResponse{Zones: zones, Sources: sources})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func monthsParam(raw string) (int, error) {
	if raw == "" {
		return defaultMonths, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxMonths {
		return 0, errBadParam("months", raw)
	}
	return n, nil
}

func radiusParam(raw string) (float64, error) {
	if raw == "" {
		return defaultRadius, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || r <= 0 || r > maxRadius {
		return 0, errBadParam("radius", raw)
	}
	return r, nil
}

func coordParams(rawLat, rawLon string) (lat, lon float64, ok bool) {
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil || !domain.ValidCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func parseBBox(raw string) (domain.BoundingBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, errBadParam("bbox", raw)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, errBadParam("bbox", raw)
		}
		vals[i] = v
	}
	box := domain.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if box.MinLat >= box.MaxLat || box.MinLon >= box.MaxLon {
		return domain.BoundingBox{}, errBadParam("bbox", raw)
	}
	return box, nil
}

type paramError struct {
	name, value string
}

func (e paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}

func errBadParam(name, value string) error {
	return paramError{name: name, value: value}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
