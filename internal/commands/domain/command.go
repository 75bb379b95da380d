package commands

import (
	"strings"
	"time"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// PayloadActuated acknowledges a non-alarm device change.
const PayloadActuated = "actuated"

const setpointPrefix = "Set temperature to: "

// Command is one outbound actuator message.
type Command struct {
	DeviceID   int64     `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	SentAt     time.Time `json:"sent_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SetpointPayload renders the alarm device command for a temperature setpoint.
func SetpointPayload(temperature string) string {
	return setpointPrefix + strings.TrimSpace(temperature)
}
