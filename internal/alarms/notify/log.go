package notify

import (
	"context"

	"github.com/rs/zerolog"

	alarms "proofing-monitor/internal/alarms/domain"
)

// LogNotifier writes alert events to the operational log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs alerts at warn and everything else at info.
func (n *LogNotifier) Notify(_ context.Context, event alarms.AlertEvent) {
	if n == nil {
		return
	}
	entry := n.logger.Info()
	if event.Kind == alarms.EventAlert {
		entry = n.logger.Warn()
	}
	if event.Value != nil {
		entry = entry.Float64("value", *event.Value)
	}
	entry.
		Str("alert_id", event.ID).
		Str("key", event.Key).
		Str("kind", string(event.Kind)).
		Str("metric", event.Metric).
		Msg(event.Message)
}
