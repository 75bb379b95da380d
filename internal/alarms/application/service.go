package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/observability/metrics"
)

// AlertNotifier receives alert emissions.
type AlertNotifier interface {
	Notify(ctx context.Context, event alarms.AlertEvent)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service evaluates metric values and forwards alert transitions.
// Both the ingest path and the polling path go through Process.
type Service struct {
	evaluator *alarms.Evaluator
	machine   *StateMachine
	notifier  AlertNotifier
	clock     Clock
	retain    bool
	logger    zerolog.Logger
}

// ServiceOption customizes the alarm service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRetain sets the retain flag carried by transition events.
func WithRetain(retain bool) ServiceOption {
	return func(s *Service) {
		s.retain = retain
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs an alarm service.
func NewService(evaluator *alarms.Evaluator, opts ...ServiceOption) (*Service, error) {
	if evaluator == nil {
		return nil, errors.New("alarms: nil evaluator")
	}
	service := &Service{
		evaluator: evaluator,
		machine:   NewStateMachine(),
		clock:     systemClock{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Process evaluates value for metric and emits any resulting transitions.
func (s *Service) Process(ctx context.Context, metric string, value float64) []alarms.AlertEvent {
	if s == nil {
		return nil
	}
	verdicts := s.evaluator.Evaluate(metric, value)
	if len(verdicts) == 0 {
		return nil
	}
	now := s.clock.Now()
	var emitted []alarms.AlertEvent
	for _, verdict := range verdicts {
		kind, ok := s.machine.Observe(verdict, now)
		if !ok {
			continue
		}
		v := verdict.Value
		event := alarms.AlertEvent{
			ID:         uuid.NewString(),
			Key:        verdict.Key,
			Kind:       kind,
			Message:    verdict.Reason,
			Metric:     verdict.Metric,
			Value:      &v,
			OccurredAt: now,
			Retain:     s.retain,
		}
		s.notify(ctx, event)
		emitted = append(emitted, event)
	}
	return emitted
}

// RaiseNotice emits a special process event. Notices are never retained.
func (s *Service) RaiseNotice(ctx context.Context, key string) (alarms.AlertEvent, bool) {
	if s == nil {
		return alarms.AlertEvent{}, false
	}
	message, ok := alarms.NoticeMessage(key)
	if !ok {
		s.logger.Debug().Str("notice", key).Msg("unknown notice")
		return alarms.AlertEvent{}, false
	}
	event := alarms.AlertEvent{
		ID:         uuid.NewString(),
		Key:        key,
		Kind:       alarms.EventNotice,
		Message:    message,
		OccurredAt: s.clock.Now(),
	}
	s.notify(ctx, event)
	return event, true
}

// Metrics lists metrics with thresholds, used by the polling loop.
func (s *Service) Metrics() []string {
	if s == nil {
		return nil
	}
	return s.evaluator.Metrics()
}

// States returns current alert states.
func (s *Service) States() []alarms.AlertState {
	if s == nil {
		return nil
	}
	return s.machine.States()
}

// State returns the current state of key.
func (s *Service) State(key string) (alarms.AlertState, bool) {
	if s == nil {
		return alarms.AlertState{}, false
	}
	return s.machine.State(key)
}

func (s *Service) notify(ctx context.Context, event alarms.AlertEvent) {
	metrics.IncAlertEvent(string(event.Kind))
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event)
}
