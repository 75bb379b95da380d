package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/observability/metrics"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// MQTTNotifier publishes alert texts to the external alarm topic.
type MQTTNotifier struct {
	publisher Publisher
	topic     string
	enabled   bool
	template  *Template
	logger    zerolog.Logger
}

// MQTTOption configures the notifier.
type MQTTOption func(*MQTTNotifier)

// WithTemplate overrides the payload template.
func WithTemplate(template *Template) MQTTOption {
	return func(n *MQTTNotifier) {
		if template != nil {
			n.template = template
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(logger zerolog.Logger) MQTTOption {
	return func(n *MQTTNotifier) {
		n.logger = logger
	}
}

// NewMQTTNotifier constructs a notifier. When enabled is false events are only logged.
func NewMQTTNotifier(publisher Publisher, topic string, enabled bool, opts ...MQTTOption) (*MQTTNotifier, error) {
	if publisher == nil {
		return nil, errors.New("mqtt notifier: nil publisher")
	}
	if topic == "" {
		return nil, errors.New("mqtt notifier: empty topic")
	}
	template, err := NewTemplate("")
	if err != nil {
		return nil, err
	}
	n := &MQTTNotifier{
		publisher: publisher,
		topic:     topic,
		enabled:   enabled,
		template:  template,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify publishes the rendered event.
func (n *MQTTNotifier) Notify(ctx context.Context, event alarms.AlertEvent) {
	if n == nil {
		return
	}
	if !n.enabled {
		n.logger.Debug().Str("key", event.Key).Str("kind", string(event.Kind)).Msg("external alarm publish disabled")
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		metrics.IncSinkError("mqtt")
		n.logger.Error().Err(err).Str("key", event.Key).Msg("render alarm payload failed")
		return
	}
	if err := n.publisher.Publish(ctx, n.topic, []byte(content), event.Retain); err != nil {
		metrics.IncSinkError("mqtt")
		n.logger.Error().Err(err).Str("topic", n.topic).Str("key", event.Key).Msg("publish alarm failed")
	}
}
