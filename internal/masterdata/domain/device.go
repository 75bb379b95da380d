package masterdata

import (
	"context"
	"errors"
	"time"
)

// TypeAlarm marks devices whose command carries a temperature setpoint.
const TypeAlarm = "alarm"

// PendingMarker is the on-disk value of the special column for a pending change.
const PendingMarker = "changed"

// ErrDeviceNotFound is returned when an update targets a missing device.
var ErrDeviceNotFound = errors.New("device: not found")

// Device is a provisioned actuator or sensor.
type Device struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Units          string    `json:"units"`
	UpdateInterval int       `json:"update_interval"`
	Placed         string    `json:"placed"`
	Enabled        string    `json:"enabled"`
	State          string    `json:"state"`
	Mode           string    `json:"mode"`
	Fan            string    `json:"fan"`
	Temperature    string    `json:"temperature"`
	PubTopic       string    `json:"pub_topic"`
	SubTopic       string    `json:"sub_topic"`
	PendingChange  bool      `json:"pending_change"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.Name == "" {
		return errors.New("device: empty name")
	}
	if d.UpdateInterval < 0 {
		return errors.New("device: negative update interval")
	}
	return nil
}

// Registry manages device persistence.
type Registry interface {
	// Upsert inserts or updates a device by name and sets its id.
	Upsert(ctx context.Context, device *Device) error
	// Get loads a device by name, or nil when missing.
	Get(ctx context.Context, name string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	// ListPending returns devices with a pending change in ascending id order.
	ListPending(ctx context.Context) ([]Device, error)
	// MarkProcessed clears the pending flag and sets last_updated in one step.
	MarkProcessed(ctx context.Context, id int64, at time.Time) error
}
