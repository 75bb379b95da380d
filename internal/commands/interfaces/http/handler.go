package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	masterdata "proofing-monitor/internal/masterdata/domain"
)

const maxBodyBytes = 64 << 10

// Handler provides device registry HTTP endpoints.
type Handler struct {
	registry masterdata.Registry
}

// NewHandler constructs a handler.
func NewHandler(registry masterdata.Registry) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("devices handler: nil registry")
	}
	return &Handler{registry: registry}, nil
}

// ServeHTTP handles GET/POST /api/v1/devices.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handlePost upserts a device by name. Setting pending_change queues a command for the next scan.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var device masterdata.Device
	if err := json.Unmarshal(body, &device); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := device.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.Upsert(r.Context(), &device); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(device)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		device, err := h.registry.Get(r.Context(), name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if device == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, device)
		return
	}

	pendingOnly := false
	if raw := r.URL.Query().Get("pending"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "pending must be a boolean", http.StatusBadRequest)
			return
		}
		pendingOnly = parsed
	}

	var (
		list []masterdata.Device
		err  error
	)
	if pendingOnly {
		list, err = h.registry.ListPending(r.Context())
	} else {
		list, err = h.registry.List(r.Context())
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []masterdata.Device{}
	}
	writeJSON(w, list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
