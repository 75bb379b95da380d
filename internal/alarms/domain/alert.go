package alarms

import (
	"context"
	"time"
)

// EventKind classifies an emitted alert event.
type EventKind string

const (
	EventAlert  EventKind = "alert"
	EventClear  EventKind = "clear"
	EventNotice EventKind = "event"
)

// AlertEvent is one emission of the alert state machine or a special process event.
type AlertEvent struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Kind       EventKind `json:"kind"`
	Message    string    `json:"message"`
	Metric     string    `json:"metric,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Retain     bool      `json:"retain"`
}

// AlertState tracks the last verdict for one alert key.
type AlertState struct {
	Key       string    `json:"key"`
	Armed     bool      `json:"armed"`
	Bad       bool      `json:"bad"`
	FiredAt   time.Time `json:"fired_at,omitempty"`
	LastValue float64   `json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryRecord is a persisted alert emission.
type HistoryRecord struct {
	ID      int64     `json:"id"`
	TS      time.Time `json:"ts"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// HistoryRepository persists alert emissions.
type HistoryRepository interface {
	Append(ctx context.Context, record *HistoryRecord) error
	ListRecent(ctx context.Context, limit int) ([]HistoryRecord, error)
}
