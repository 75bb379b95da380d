package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	alarms "proofing-monitor/internal/alarms/domain"
	commandsapp "proofing-monitor/internal/commands/application"
	"proofing-monitor/internal/logging"
	"proofing-monitor/internal/observability/metrics"
	"proofing-monitor/internal/telemetry/classifier"
	telemetry "proofing-monitor/internal/telemetry/domain"
	"proofing-monitor/internal/transport/mqtt"
)

// AlertProcessor is the shared evaluate+alert path.
type AlertProcessor interface {
	Process(ctx context.Context, metric string, value float64) []alarms.AlertEvent
	RaiseNotice(ctx context.Context, key string) (alarms.AlertEvent, bool)
	Metrics() []string
}

// CommandDispatcher publishes pending device commands.
type CommandDispatcher interface {
	DispatchPending(ctx context.Context) (commandsapp.Report, error)
}

// Subscriber is the inbound side of the transport.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Config holds loop settings.
type Config struct {
	SubscribeTopic string
	AlarmTopic     string
	QueueSize      int
	EnqueueTimeout time.Duration
	DispatchAfter  time.Duration
	Schedule       string
}

// Monitor runs the ingestion worker and the polling cycle.
type Monitor struct {
	cfg        Config
	store      telemetry.Store
	alerts     AlertProcessor
	dispatcher CommandDispatcher
	clock      Clock
	logger     zerolog.Logger

	// mu serializes store and alert state access between ingestion and polling.
	mu    sync.Mutex
	queue chan mqtt.Message
}

// Option configures Monitor.
type Option func(*Monitor)

// WithClock overrides the clock used to timestamp readings.
func WithClock(clock Clock) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// New constructs a Monitor.
func New(cfg Config, store telemetry.Store, alerts AlertProcessor, dispatcher CommandDispatcher, opts ...Option) (*Monitor, error) {
	if store == nil {
		return nil, errors.New("monitor: nil store")
	}
	if alerts == nil {
		return nil, errors.New("monitor: nil alert processor")
	}
	if dispatcher == nil {
		return nil, errors.New("monitor: nil dispatcher")
	}
	if cfg.QueueSize <= 0 {
		return nil, errors.New("monitor: queue size must be positive")
	}
	if cfg.EnqueueTimeout <= 0 {
		return nil, errors.New("monitor: enqueue timeout must be positive")
	}
	m := &Monitor{
		cfg:        cfg,
		store:      store,
		alerts:     alerts,
		dispatcher: dispatcher,
		clock:      systemClock{},
		logger:     zerolog.Nop(),
		queue:      make(chan mqtt.Message, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Enqueue hands msg to the worker. It waits at most the enqueue timeout, then drops the message.
func (m *Monitor) Enqueue(msg mqtt.Message) bool {
	select {
	case m.queue <- msg:
		metrics.SetQueueDepth(len(m.queue))
		return true
	default:
	}
	timer := time.NewTimer(m.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case m.queue <- msg:
		metrics.SetQueueDepth(len(m.queue))
		return true
	case <-timer.C:
		metrics.IncDropped()
		m.logger.Warn().Str("topic", msg.Topic).Int("queue_size", cap(m.queue)).Msg("ingest queue full, message dropped")
		return false
	}
}

// HandleMessage classifies msg and processes every sample: store, then evaluate and alert.
func (m *Monitor) HandleMessage(ctx context.Context, msg mqtt.Message) {
	start := time.Now()
	if msg.Topic == m.cfg.AlarmTopic {
		if msg.Retained {
			m.logger.Info().Str("topic", msg.Topic).Msg("retained alarm message ignored")
		}
		metrics.ObserveIngest(metrics.IngestResultIgnored, time.Since(start))
		return
	}

	payload := string(msg.Payload)
	res := classifier.Classify(msg.Topic, payload)
	if res.Empty() {
		m.logger.Debug().Str("topic", msg.Topic).Str("payload", payload).Msg("unrecognized payload")
		metrics.ObserveIngest(metrics.IngestResultEmpty, time.Since(start))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for _, sample := range res.Samples {
		reading := &telemetry.Reading{
			TS:           now,
			Device:       sample.Device,
			Metric:       sample.Metric,
			ValueNumeric: sample.Value,
			ValueText:    sample.Raw,
		}
		if err := m.store.Append(ctx, reading); err != nil {
			metrics.IncStoreError("append")
			m.logger.Error().Err(err).Str("metric", sample.Metric).Msg("store append failed")
			continue
		}
		metrics.IncSample(sample.Metric)
		if sample.Value == nil {
			continue
		}
		m.alerts.Process(ctx, sample.Metric, *sample.Value)
	}
	if key := noticeKey(res.Event); key != "" {
		m.alerts.RaiseNotice(ctx, key)
	}
	m.logger.Debug().Str("topic", msg.Topic).Str("family", res.Family).Int("samples", len(res.Samples)).Msg("message processed")
	metrics.ObserveIngest(metrics.IngestResultClassified, time.Since(start))
}

// Poll re-evaluates the latest stored value of every thresholded metric.
func (m *Monitor) Poll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, metric := range m.alerts.Metrics() {
		reading, err := m.store.Latest(ctx, metric)
		if err != nil {
			metrics.IncStoreError("latest")
			m.logger.Error().Err(err).Str("metric", metric).Msg("latest read failed")
			errs = append(errs, fmt.Errorf("%s: %w", metric, err))
			continue
		}
		if reading == nil || reading.ValueNumeric == nil {
			continue
		}
		m.alerts.Process(ctx, metric, *reading.ValueNumeric)
	}
	return errors.Join(errs...)
}

// Cycle polls, waits the dispatch offset, then dispatches pending commands.
func (m *Monitor) Cycle(ctx context.Context) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePollCycle(result, time.Since(start))
	}()

	if err := m.Poll(ctx); err != nil {
		result = metrics.ResultError
	}
	if m.cfg.DispatchAfter > 0 {
		timer := time.NewTimer(m.cfg.DispatchAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	report, err := m.dispatcher.DispatchPending(ctx)
	if err != nil {
		result = metrics.ResultError
		m.logger.Error().Err(err).Msg("dispatch pending failed")
		return
	}
	if report.Failed > 0 {
		result = metrics.ResultError
	}
	if report.Sent > 0 || report.Failed > 0 {
		m.logger.Info().Int("sent", report.Sent).Int("failed", report.Failed).Msg("dispatch cycle")
	}
}

// Run subscribes to the topic tree, starts the worker and the polling schedule, and blocks
// until ctx is cancelled. It returns after the running cycle and the worker have stopped.
func (m *Monitor) Run(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return errors.New("monitor: nil subscriber")
	}
	cronLogger := logging.NewCronLogger(m.logger)
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := scheduler.AddFunc(m.cfg.Schedule, func() { m.Cycle(ctx) }); err != nil {
		return fmt.Errorf("monitor: schedule %q: %w", m.cfg.Schedule, err)
	}
	handler := func(msg mqtt.Message) { m.Enqueue(msg) }
	if err := sub.Subscribe(ctx, m.cfg.SubscribeTopic, handler); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.work(ctx)
	}()
	scheduler.Start()
	m.logger.Info().Str("topic", m.cfg.SubscribeTopic).Str("schedule", m.cfg.Schedule).Msg("monitor started")

	<-ctx.Done()
	<-scheduler.Stop().Done()
	wg.Wait()
	m.logger.Info().Msg("monitor stopped")
	return nil
}

func (m *Monitor) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			metrics.SetQueueDepth(len(m.queue))
			m.safeHandle(ctx, msg)
		}
	}
}

func (m *Monitor) safeHandle(ctx context.Context, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("topic", msg.Topic).
				Msg("ingest panic recovered")
		}
	}()
	m.HandleMessage(ctx, msg)
}

func noticeKey(event classifier.Event) string {
	switch event {
	case classifier.EventTimerFinished:
		return alarms.NoticeTimerFinished
	case classifier.EventOvenReady:
		return alarms.NoticeOvenReady
	default:
		return ""
	}
}
