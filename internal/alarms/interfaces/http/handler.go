package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	alarms "proofing-monitor/internal/alarms/domain"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// StateReader exposes current alert states.
type StateReader interface {
	States() []alarms.AlertState
}

// Handler provides alert HTTP endpoints.
type Handler struct {
	states  StateReader
	history alarms.HistoryRepository
}

// NewHandler constructs a handler.
func NewHandler(states StateReader, history alarms.HistoryRepository) (*Handler, error) {
	if states == nil {
		return nil, errors.New("alerts handler: nil state reader")
	}
	if history == nil {
		return nil, errors.New("alerts handler: nil history repository")
	}
	return &Handler{states: states, history: history}, nil
}

// ServeHTTP handles /api/v1/alerts and /api/v1/alerts/history.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/alerts":
		h.handleStates(w, r)
	case "/api/v1/alerts/history":
		h.handleHistory(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStates(w http.ResponseWriter, _ *http.Request) {
	states := h.states.States()
	if states == nil {
		states = []alarms.AlertState{}
	}
	writeJSON(w, states)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []alarms.HistoryRecord{}
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
