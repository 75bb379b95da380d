package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
)

const (
	streamBuffer      = 16
	heartbeatInterval = 20 * time.Second
)

// frame is one SSE message: kind becomes the event name, key the event id.
type frame struct {
	kind alarms.EventKind
	key  string
	data []byte
}

type subscriber struct {
	frames chan frame
	kinds  map[alarms.EventKind]bool
}

func (s *subscriber) wants(kind alarms.EventKind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

// SSEBroker fans alert, clear and process events out to stream clients.
type SSEBroker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subs: make(map[*subscriber]struct{})}
}

// Notify implements the alert notifier. A client whose buffer is full misses the event.
func (b *SSEBroker) Notify(_ context.Context, event alarms.AlertEvent) {
	if b == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	f := frame{kind: event.Kind, key: event.Key, data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !sub.wants(f.kind) {
			continue
		}
		select {
		case sub.frames <- f:
		default:
		}
	}
}

// Clients returns the number of connected stream clients.
func (b *SSEBroker) Clients() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *SSEBroker) subscribe(kinds []alarms.EventKind) *subscriber {
	sub := &subscriber{frames: make(chan frame, streamBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[alarms.EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *SSEBroker) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// StreamHandler serves GET /api/v1/alerts/stream.
// Clients receive a snapshot of the current alert states, then live events.
// ?kind=alert,clear limits the stream to the listed event kinds.
type StreamHandler struct {
	broker    *SSEBroker
	states    StateReader
	heartbeat time.Duration
}

// NewStreamHandler constructs a stream handler. states may be nil.
func NewStreamHandler(broker *SSEBroker, states StateReader) *StreamHandler {
	return &StreamHandler{broker: broker, states: states, heartbeat: heartbeatInterval}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	kinds, err := parseKinds(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.broker.subscribe(kinds)
	defer h.broker.unsubscribe(sub)

	if err := writeFrame(w, h.snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case f := <-sub.frames:
			if err := writeFrame(w, f); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *StreamHandler) snapshot() frame {
	states := []alarms.AlertState{}
	if h.states != nil {
		if current := h.states.States(); current != nil {
			states = current
		}
	}
	data, err := json.Marshal(states)
	if err != nil {
		data = []byte("[]")
	}
	return frame{kind: "snapshot", data: data}
}

func writeFrame(w http.ResponseWriter, f frame) error {
	var sb strings.Builder
	sb.WriteString("event: ")
	sb.WriteString(string(f.kind))
	sb.WriteByte('\n')
	if f.key != "" {
		sb.WriteString("id: ")
		sb.WriteString(f.key)
		sb.WriteByte('\n')
	}
	sb.WriteString("data: ")
	sb.Write(f.data)
	sb.WriteString("\n\n")
	_, err := w.Write([]byte(sb.String()))
	return err
}

func parseKinds(raw string) ([]alarms.EventKind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var kinds []alarms.EventKind
	for _, part := range strings.Split(raw, ",") {
		kind := alarms.EventKind(strings.ToLower(strings.TrimSpace(part)))
		switch kind {
		case alarms.EventAlert, alarms.EventClear, alarms.EventNotice:
			kinds = append(kinds, kind)
		case "":
		default:
			return nil, fmt.Errorf("unknown event kind %q", part)
		}
	}
	return kinds, nil
}
