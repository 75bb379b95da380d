package notify

import (
	"context"

	alarms "proofing-monitor/internal/alarms/domain"
)

// Notifier receives alert events.
type Notifier interface {
	Notify(ctx context.Context, event alarms.AlertEvent)
}

// MultiNotifier dispatches alert events to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add appends a notifier.
func (m *MultiNotifier) Add(notifier Notifier) {
	if m == nil || notifier == nil {
		return
	}
	m.notifiers = append(m.notifiers, notifier)
}

// Notify forwards events to all notifiers in order.
func (m *MultiNotifier) Notify(ctx context.Context, event alarms.AlertEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
