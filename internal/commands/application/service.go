package application

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	commands "proofing-monitor/internal/commands/domain"
	masterdata "proofing-monitor/internal/masterdata/domain"
	"proofing-monitor/internal/observability/metrics"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Report summarizes one dispatch scan.
type Report struct {
	Commands []commands.Command
	Sent     int
	Failed   int
}

// Dispatcher turns pending device changes into outbound commands.
type Dispatcher struct {
	registry      masterdata.Registry
	publisher     Publisher
	fallbackTopic string
	clock         Clock
	logger        zerolog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher constructs a dispatcher. fallbackTopic is used for devices without a pub topic.
func NewDispatcher(registry masterdata.Registry, publisher Publisher, fallbackTopic string, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("commands: nil registry")
	}
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	if fallbackTopic == "" {
		return nil, errors.New("commands: empty fallback topic")
	}
	d := &Dispatcher{
		registry:      registry,
		publisher:     publisher,
		fallbackTopic: fallbackTopic,
		clock:         systemClock{},
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch builds one command per pending device in ascending id order.
func (d *Dispatcher) Dispatch(snapshot []masterdata.Device) []commands.Command {
	pending := make([]masterdata.Device, 0, len(snapshot))
	for _, device := range snapshot {
		if device.PendingChange {
			pending = append(pending, device)
		}
	}
	slices.SortStableFunc(pending, func(a, b masterdata.Device) int {
		return cmp.Compare(a.ID, b.ID)
	})

	now := d.clock.Now()
	out := make([]commands.Command, 0, len(pending))
	for _, device := range pending {
		out = append(out, commands.Command{
			DeviceID:   device.ID,
			DeviceName: device.Name,
			Topic:      d.topicFor(device),
			Payload:    payloadFor(device),
			Status:     commands.StatusPending,
			CreatedAt:  now,
		})
	}
	return out
}

// DispatchPending publishes commands for flagged devices and clears their flags.
// A device whose publish fails keeps its flag and is retried on the next scan.
func (d *Dispatcher) DispatchPending(ctx context.Context) (Report, error) {
	snapshot, err := d.registry.ListPending(ctx)
	if err != nil {
		metrics.IncStoreError("list_pending")
		return Report{}, err
	}

	var report Report
	for _, cmd := range d.Dispatch(snapshot) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := d.publisher.Publish(ctx, cmd.Topic, []byte(cmd.Payload), false); err != nil {
			cmd.Status = commands.StatusFailed
			cmd.Error = err.Error()
			report.Failed++
			metrics.IncCommandResult(metrics.CommandResultFailed)
			d.logger.Error().Err(err).Int64("device_id", cmd.DeviceID).Str("topic", cmd.Topic).Msg("command publish failed")
			report.Commands = append(report.Commands, cmd)
			continue
		}
		cmd.SentAt = d.clock.Now()
		if err := d.registry.MarkProcessed(ctx, cmd.DeviceID, cmd.SentAt); err != nil {
			// Flag stays set; the command is sent again next scan.
			metrics.IncStoreError("mark_processed")
			d.logger.Error().Err(err).Int64("device_id", cmd.DeviceID).Msg("mark processed failed")
		}
		cmd.Status = commands.StatusSent
		report.Sent++
		metrics.IncCommandResult(metrics.CommandResultSent)
		d.logger.Info().
			Int64("device_id", cmd.DeviceID).
			Str("device", cmd.DeviceName).
			Str("topic", cmd.Topic).
			Str("payload", cmd.Payload).
			Msg("command dispatched")
		report.Commands = append(report.Commands, cmd)
	}
	return report, nil
}

func (d *Dispatcher) topicFor(device masterdata.Device) string {
	if device.PubTopic != "" {
		return device.PubTopic
	}
	return d.fallbackTopic
}

func payloadFor(device masterdata.Device) string {
	if strings.EqualFold(device.Type, masterdata.TypeAlarm) {
		return commands.SetpointPayload(device.Temperature)
	}
	return commands.PayloadActuated
}
