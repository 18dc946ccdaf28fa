package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/pool-watcher/pkg/model"
)

// StatusProvider exposes the current pipeline snapshot.
type StatusProvider interface {
	Status() model.Status
}

// AlertLister reads the alert journal.
type AlertLister interface {
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.AlertRecord, error)
}

// Server provides health check and status API endpoints.
type Server struct {
	status StatusProvider
	alerts AlertLister
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates an API server. alerts may be nil when the journal is
// disabled.
func NewServer(status StatusProvider, alerts AlertLister, logger *slog.Logger) *Server {
	s := &Server{
		status: status,
		alerts: alerts,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.status.Status()
	state := "ok"
	switch {
	case st.Maintenance:
		state = "maintenance"
	case !st.Running:
		state = "stopped"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": state})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		http.Error(w, "alert journal disabled", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := model.AlertFilter{
		Kind:  r.URL.Query().Get("kind"),
		Limit: 100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := s.alerts.ListAlerts(ctx, filter)
	if err != nil {
		s.logger.Error("list alerts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.AlertRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
