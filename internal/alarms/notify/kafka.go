package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/observability/metrics"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier forwards alert events as JSON records keyed by alert key.
type KafkaNotifier struct {
	writer MessageWriter
	logger zerolog.Logger
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notifier: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka notifier: topic is required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}, nil
}

// NewKafkaNotifier constructs a notifier.
func NewKafkaNotifier(writer MessageWriter, logger zerolog.Logger) (*KafkaNotifier, error) {
	if writer == nil {
		return nil, errors.New("kafka notifier: nil writer")
	}
	return &KafkaNotifier{writer: writer, logger: logger}, nil
}

// Notify writes one record per event.
func (n *KafkaNotifier) Notify(ctx context.Context, event alarms.AlertEvent) {
	if n == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		metrics.IncSinkError("kafka")
		n.logger.Error().Err(err).Str("alert_id", event.ID).Msg("failed to serialize alert")
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(event.ID)},
			{Key: "kind", Value: []byte(event.Kind)},
		},
		Time: event.OccurredAt,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncSinkError("kafka")
		n.logger.Error().Err(err).Str("alert_id", event.ID).Msg("kafka alert publish failed")
	}
}
