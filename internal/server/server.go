package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devicemonitor/internal/logger"
	"devicemonitor/internal/models"
)

const defaultHistoryLimit = 500

// DeviceLister exposes the registry contents.
type DeviceLister interface {
	List() ([]models.DeviceEntry, error)
}

// RecordReader exposes raw availability log rows.
type RecordReader interface {
	Records(limit int) ([]models.AvailabilityRecord, error)
}

// Server wraps the read-only HTTP status API.
type Server struct {
	httpServer   *http.Server
	registry     DeviceLister
	records      RecordReader
	hub          *Hub
	historyLimit int
	log          zerolog.Logger

	mu     sync.RWMutex
	latest *models.CycleReport
}

// New creates a configured HTTP server for the monitor.
func New(addr string, registry DeviceLister, records RecordReader, log zerolog.Logger) *Server {
	log = logger.WithComponent(log, "server")

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry:     registry,
		records:      records,
		hub:          NewHub(log),
		historyLimit: defaultHistoryLimit,
		log:          log,
	}
	s.registerRoutes(mux)
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown disconnects stream clients and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Publish records the latest cycle and pushes it to stream subscribers.
func (s *Server) Publish(report models.CycleReport) {
	s.mu.Lock()
	s.latest = &report
	s.mu.Unlock()

	s.hub.Broadcast(EventCycleCompleted, report)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/availability", s.handleAvailability)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/stream", s.hub.ServeWS)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.registry.List()
	if err != nil {
		s.log.Error().Err(err).Msg("list devices")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []models.DeviceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.historyLimit)
	rows, err := s.records.Records(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("read availability log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.AvailabilityRecord{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []models.AvailabilityRecord{},
		})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
