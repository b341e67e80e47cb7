// Package v1 implements the native REST API for daemon status and manual
// triggers.
package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vmunix/mvarr/internal/events"
	"github.com/vmunix/mvarr/internal/scheduler"
)

// Server is the v1 API server. It is a thin layer over the scheduler's
// trigger/status surface and the event log.
type Server struct {
	sched    *scheduler.Scheduler
	eventLog *events.EventLog
}

// New creates a new v1 API server. eventLog is optional.
func New(sched *scheduler.Scheduler, eventLog *events.EventLog) *Server {
	return &Server{
		sched:    sched,
		eventLog: eventLog,
	}
}

// RegisterRoutes registers API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.getStatus)
	mux.HandleFunc("POST /api/v1/discovery/trigger", s.triggerDiscovery)
	mux.HandleFunc("POST /api/v1/downloads/trigger", s.triggerSweep)
	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("GET /api/v1/health", s.getHealth)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) triggerDiscovery(w http.ResponseWriter, r *http.Request) {
	var req triggerDiscoveryRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
	}

	var artistID int64
	if req.ArtistID != nil {
		artistID = *req.ArtistID
		if artistID <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "artist_id must be positive")
			return
		}
	}

	if err := s.sched.TriggerDiscovery(artistID); err != nil {
		writeError(w, http.StatusConflict, "NOT_RUNNING", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{Triggered: true})
}

func (s *Server) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.TriggerSweep(); err != nil {
		writeError(w, http.StatusConflict, "NOT_RUNNING", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{Triggered: true})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeJSON(w, http.StatusOK, listEventsResponse{Items: []eventResponse{}})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be 1-500")
			return
		}
		limit = parsed
	}

	raw, err := s.eventLog.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	items := make([]eventResponse, 0, len(raw))
	for _, e := range raw {
		items = append(items, eventResponse{
			ID:         e.ID,
			Type:       e.EventType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    json.RawMessage(e.Payload),
			OccurredAt: e.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Items: items})
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
