package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/observability/metrics"
)

// HistoryNotifier persists every alert event to the alert history.
type HistoryNotifier struct {
	repo   alarms.HistoryRepository
	logger zerolog.Logger
}

// NewHistoryNotifier constructs a notifier.
func NewHistoryNotifier(repo alarms.HistoryRepository, logger zerolog.Logger) (*HistoryNotifier, error) {
	if repo == nil {
		return nil, errors.New("history notifier: nil repository")
	}
	return &HistoryNotifier{repo: repo, logger: logger}, nil
}

// Notify appends a history record.
func (n *HistoryNotifier) Notify(ctx context.Context, event alarms.AlertEvent) {
	if n == nil {
		return
	}
	record := &alarms.HistoryRecord{
		TS:      event.OccurredAt,
		Level:   string(event.Kind),
		Message: event.Message,
	}
	if err := n.repo.Append(ctx, record); err != nil {
		metrics.IncStoreError("alert_history")
		n.logger.Error().Err(err).Str("alert_id", event.ID).Msg("alert history append failed")
	}
}
