// Package api is the HTTP surface of the occupancy engine: event
// ingestion, zone management, analytics queries, and the live SSE stream.
package api

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/httputil"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/anomaly"
	"github.com/banshee-data/occupancy.report/internal/parking/forecast"
	"github.com/banshee-data/occupancy.report/internal/parking/hub"
	"github.com/banshee-data/occupancy.report/internal/parking/ingest"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
	"github.com/banshee-data/occupancy.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ServerConfig carries the wired subsystems the HTTP layer serves.
type ServerConfig struct {
	Registry *parking.Registry
	States   *parking.StateManager
	Pipeline *ingest.Pipeline
	Store    *series.Store
	Forecast *forecast.Engine
	Anomaly  *anomaly.Detector
	Hub      *hub.Hub
	DB       *db.DB
}

type Server struct {
	registry *parking.Registry
	states   *parking.StateManager
	pipeline *ingest.Pipeline
	store    *series.Store
	forecast *forecast.Engine
	anomaly  *anomaly.Detector
	hub      *hub.Hub
	db       *db.DB
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		registry: cfg.Registry,
		states:   cfg.States,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		forecast: cfg.Forecast,
		anomaly:  cfg.Anomaly,
		hub:      cfg.Hub,
		db:       cfg.DB,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/zones/", s.handleZone)
	mux.HandleFunc("/api/ingest/stats", s.showIngestStats)
	mux.HandleFunc("/api/analytics/dashboard", s.showDashboard)
	mux.HandleFunc("/api/analytics/trend", s.showTrend)
	mux.HandleFunc("/api/analytics/forecast", s.showForecast)
	mux.HandleFunc("/api/analytics/peak-hours", s.showPeakHours)
	mux.HandleFunc("/api/analytics/arrival-rate", s.showArrivalRate)
	mux.HandleFunc("/api/stream", s.streamNotifications)
	mux.HandleFunc("/api/charts/trend", s.renderTrendChart)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// handleEvents routes POST (ingest) and GET (query log) for /api/events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.ingestEvent(w, r)
	case http.MethodGet:
		s.listEvents(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var event parking.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.BadRequest(w, "invalid event payload: "+err.Error())
		return
	}

	result := s.pipeline.Ingest(event)

	switch result.Status {
	case ingest.StatusAccepted:
		if s.db != nil {
			// Write-through: the event log is history, the pipeline is truth.
			persisted := event
			persisted.EventID = result.EventID
			if err := s.db.RecordEvent(persisted); err != nil {
				monitoring.Logf("failed to persist event %s: %v", result.EventID, err)
			}
		}
		httputil.WriteJSON(w, http.StatusAccepted, result)
	case ingest.StatusDuplicate:
		httputil.WriteJSON(w, http.StatusOK, result)
	default:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, result)
	}
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	zone := r.URL.Query().Get("zone")

	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter, want RFC3339")
			return
		}
		since = parsed
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	events, err := s.db.RecentEvents(zone, since, limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve events: "+err.Error())
		return
	}
	if events == nil {
		events = []parking.Event{}
	}
	httputil.WriteJSONOK(w, events)
}

// handleZones routes GET (list) and POST (upsert) for /api/zones.
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		httputil.WriteJSONOK(w, s.registry.List(activeOnly))
	case http.MethodPost:
		var zone parking.Zone
		if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
			httputil.BadRequest(w, "invalid zone payload: "+err.Error())
			return
		}
		if err := s.registry.Upsert(zone); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		// The registry applied defaults; persist its version of the zone.
		stored, _ := s.registry.Get(zone.ZoneCode)
		if s.db != nil {
			if err := s.db.UpsertZone(stored); err != nil {
				monitoring.Logf("failed to persist zone %s: %v", zone.ZoneCode, err)
			}
		}
		httputil.WriteJSONOK(w, stored)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleZone serves /api/zones/{code}: GET returns configuration plus live
// occupancy, DELETE deactivates.
func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/api/zones/")
	if code == "" || strings.Contains(code, "/") {
		httputil.NotFound(w, "unknown zone path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		zone, ok := s.registry.Get(code)
		if !ok {
			httputil.NotFound(w, "unknown zone: "+code)
			return
		}
		state, err := s.states.Get(code)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, zoneDetail{
			Zone:           zone,
			OccupiedSpots:  state.OccupiedSpots,
			AvailableSpots: state.AvailableSpots(),
			OccupancyRate:  state.OccupancyRate(),
			LastEventTime:  state.LastEventTime,
		})
	case http.MethodDelete:
		if err := s.registry.Deactivate(code); err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		if s.db != nil {
			if err := s.db.DeactivateZone(code); err != nil && err != sql.ErrNoRows {
				monitoring.Logf("failed to persist zone deactivation %s: %v", code, err)
			}
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "deactivated", "zone_code": code})
	default:
		httputil.MethodNotAllowed(w)
	}
}

type zoneDetail struct {
	parking.Zone
	OccupiedSpots  int       `json:"occupied_spots"`
	AvailableSpots int       `json:"available_spots"`
	OccupancyRate  float64   `json:"occupancy_rate"`
	LastEventTime  time.Time `json:"last_event_timestamp"`
}

func (s *Server) showIngestStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.pipeline.Stats())
}
