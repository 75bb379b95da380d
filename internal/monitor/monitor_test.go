package monitor

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	alarmapp "proofing-monitor/internal/alarms/application"
	alarms "proofing-monitor/internal/alarms/domain"
	commandsapp "proofing-monitor/internal/commands/application"
	masterdata "proofing-monitor/internal/masterdata/domain"
	mdmemory "proofing-monitor/internal/masterdata/infrastructure/memory"
	telemetry "proofing-monitor/internal/telemetry/domain"
	"proofing-monitor/internal/telemetry/infrastructure/memory"
	"proofing-monitor/internal/transport/mqtt"
)

const base = "pr/Proofing/BakeryA"

type recordingNotifier struct {
	mu     sync.Mutex
	events []alarms.AlertEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event alarms.AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) snapshot() []alarms.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alarms.AlertEvent, len(r.events))
	copy(out, r.events)
	return out
}

type stubDispatcher struct {
	calls  int
	report commandsapp.Report
	err    error
}

func (d *stubDispatcher) DispatchPending(context.Context) (commandsapp.Report, error) {
	d.calls++
	return d.report, d.err
}

type stubPublisher struct {
	topics []string
}

func (p *stubPublisher) Publish(_ context.Context, topic string, _ []byte, _ bool) error {
	p.topics = append(p.topics, topic)
	return nil
}

type failingStore struct {
	telemetry.Store
}

func (failingStore) Append(context.Context, *telemetry.Reading) error {
	return errors.New("disk full")
}

func (failingStore) Latest(context.Context, string) (*telemetry.Reading, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Series(context.Context, string) iter.Seq2[telemetry.Reading, error] {
	return func(func(telemetry.Reading, error) bool) {}
}

type captureSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler mqtt.Handler
}

func (s *captureSubscriber) Subscribe(_ context.Context, topic string, handler mqtt.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic = topic
	s.handler = handler
	return nil
}

func (s *captureSubscriber) get() mqtt.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func testConfig() Config {
	return Config{
		SubscribeTopic: base + "/#",
		AlarmTopic:     base + "/alarm",
		QueueSize:      4,
		EnqueueTimeout: 10 * time.Millisecond,
		Schedule:       "@every 1h",
	}
}

func newAlerts(t *testing.T, rec *recordingNotifier) *alarmapp.Service {
	t.Helper()
	evaluator, err := alarms.NewEvaluator(alarms.DefaultThresholds())
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	svc, err := alarmapp.NewService(evaluator, alarmapp.WithNotifier(rec))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func newMonitor(t *testing.T, store telemetry.Store, alerts AlertProcessor, dispatcher CommandDispatcher, cfg Config) *Monitor {
	t.Helper()
	m, err := New(cfg, store, alerts, dispatcher)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func msg(topic, payload string) mqtt.Message {
	return mqtt.Message{Topic: topic, Payload: []byte(payload)}
}

func TestHandleMessageStoresThenAlerts(t *testing.T) {
	store := memory.NewReadingStore()
	rec := &recordingNotifier{}
	m := newMonitor(t, store, newAlerts(t, rec), &stubDispatcher{}, testConfig())
	ctx := context.Background()

	m.HandleMessage(ctx, msg(base+"/env-1/pub", "From: AirEnv Temperature: 30 Humidity: 75"))
	m.HandleMessage(ctx, msg(base+"/env-1/pub", "From: AirEnv Temperature: 33.5 Humidity: 75"))

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one alert, got %+v", events)
	}
	if events[0].Message != "Air temperature out of range: 33.5°C (target 27.0–32.0°C)" {
		t.Fatalf("unexpected message %q", events[0].Message)
	}
	latest, err := store.Latest(ctx, telemetry.MetricAirTemperature)
	if err != nil || latest == nil || *latest.ValueNumeric != 33.5 {
		t.Fatalf("unexpected latest %+v %v", latest, err)
	}
	hum, _ := store.Latest(ctx, telemetry.MetricAirHumidity)
	if hum == nil || *hum.ValueNumeric != 75 {
		t.Fatalf("humidity not stored: %+v", hum)
	}
}

func TestHandleMessageIgnoresAlarmTopic(t *testing.T) {
	store := memory.NewReadingStore()
	rec := &recordingNotifier{}
	m := newMonitor(t, store, newAlerts(t, rec), &stubDispatcher{}, testConfig())

	retained := msg(base+"/alarm", "From: AirEnv Temperature: 40 Humidity: 75")
	retained.Retained = true
	m.HandleMessage(context.Background(), retained)

	if latest, _ := store.Latest(context.Background(), telemetry.MetricAirTemperature); latest != nil {
		t.Fatalf("alarm topic must not be classified, stored %+v", latest)
	}
}

func TestHandleMessageRaisesNotices(t *testing.T) {
	store := memory.NewReadingStore()
	rec := &recordingNotifier{}
	m := newMonitor(t, store, newAlerts(t, rec), &stubDispatcher{}, testConfig())
	ctx := context.Background()

	m.HandleMessage(ctx, msg(base+"/oven-1/pub", "Oven Ready: 1 OvenTemp: 182"))
	m.HandleMessage(ctx, msg(base+"/timer-1/pub", "Timer remaining: 0"))

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected two notices, got %+v", events)
	}
	if events[0].Key != alarms.NoticeOvenReady || events[0].Message != "Oven ready." {
		t.Fatalf("unexpected oven notice %+v", events[0])
	}
	if events[1].Key != alarms.NoticeTimerFinished || events[1].Retain {
		t.Fatalf("unexpected timer notice %+v", events[1])
	}
	if latest, _ := store.Latest(ctx, telemetry.MetricOvenTemp); latest == nil {
		t.Fatalf("oven temperature not stored")
	}
}

func TestHandleMessageStoreFailureSkipsAlerting(t *testing.T) {
	rec := &recordingNotifier{}
	m := newMonitor(t, failingStore{}, newAlerts(t, rec), &stubDispatcher{}, testConfig())
	ctx := context.Background()

	for _, v := range []string{"30", "40", "30"} {
		m.HandleMessage(ctx, msg(base+"/env-1/pub", "From: AirEnv Temperature: "+v+" Humidity: 75"))
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("store failures must skip alerting, got %+v", events)
	}
	if err := m.Poll(ctx); err == nil {
		t.Fatalf("expected poll error from failing store")
	}
}

func TestPollUsesLatestValueOnly(t *testing.T) {
	store := memory.NewReadingStore()
	rec := &recordingNotifier{}
	alerts := newAlerts(t, rec)
	m := newMonitor(t, store, alerts, &stubDispatcher{}, testConfig())
	ctx := context.Background()

	v := 80.0
	if err := store.Append(ctx, &telemetry.Reading{Metric: telemetry.MetricDoughMoisture, ValueNumeric: &v}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// First poll arms, second poll sees the same verdict.
	for i := 0; i < 2; i++ {
		if err := m.Poll(ctx); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("repeated polls must not emit, got %+v", events)
	}

	ok := 65.0
	if err := store.Append(ctx, &telemetry.Reading{Metric: telemetry.MetricDoughMoisture, ValueNumeric: &ok}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	events := rec.snapshot()
	if len(events) != 1 || events[0].Kind != alarms.EventClear {
		t.Fatalf("expected one clear, got %+v", events)
	}
	state, found := alerts.State(alarms.KeyDoughMoisture)
	if !found || state.Bad {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestHandleMessageAndPollConcurrently(t *testing.T) {
	store := memory.NewReadingStore()
	rec := &recordingNotifier{}
	alerts := newAlerts(t, rec)
	m := newMonitor(t, store, alerts, &stubDispatcher{}, testConfig())
	ctx := context.Background()

	m.HandleMessage(ctx, msg(base+"/doughH-1/pub", "Moisture: 65"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.HandleMessage(ctx, msg(base+"/doughH-1/pub", "Moisture: 80"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := m.Poll(ctx); err != nil {
				t.Errorf("poll: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	events := rec.snapshot()
	if len(events) != 1 || events[0].Kind != alarms.EventAlert || events[0].Key != alarms.KeyDoughMoisture {
		t.Fatalf("expected exactly one alert, got %+v", events)
	}
	state, found := alerts.State(alarms.KeyDoughMoisture)
	if !found || !state.Bad || state.LastValue != 80 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestCycleDispatchesAfterPoll(t *testing.T) {
	reg := mdmemory.NewDeviceRegistry()
	ctx := context.Background()
	device := &masterdata.Device{Name: "alarm", Type: masterdata.TypeAlarm, Temperature: "30", PendingChange: true}
	if err := reg.Upsert(ctx, device); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	pub := &stubPublisher{}
	dispatcher, err := commandsapp.NewDispatcher(reg, pub, base+"/actuator")
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	cfg := testConfig()
	cfg.DispatchAfter = time.Millisecond
	m := newMonitor(t, memory.NewReadingStore(), newAlerts(t, &recordingNotifier{}), dispatcher, cfg)

	m.Cycle(ctx)
	if len(pub.topics) != 1 || pub.topics[0] != base+"/actuator" {
		t.Fatalf("unexpected publishes %v", pub.topics)
	}
	pending, _ := reg.ListPending(ctx)
	if len(pending) != 0 {
		t.Fatalf("flag should be cleared, pending=%+v", pending)
	}
	m.Cycle(ctx)
	if len(pub.topics) != 1 {
		t.Fatalf("processed device must not be dispatched again")
	}
}

func TestCycleCancelledBeforeDispatch(t *testing.T) {
	dispatcher := &stubDispatcher{}
	cfg := testConfig()
	cfg.DispatchAfter = time.Hour
	m := newMonitor(t, memory.NewReadingStore(), newAlerts(t, &recordingNotifier{}), dispatcher, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Cycle(ctx)
	if dispatcher.calls != 0 {
		t.Fatalf("dispatch must not run after cancellation")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	m := newMonitor(t, memory.NewReadingStore(), newAlerts(t, &recordingNotifier{}), &stubDispatcher{}, cfg)

	if !m.Enqueue(msg("a", "x")) {
		t.Fatalf("first enqueue should succeed")
	}
	if m.Enqueue(msg("b", "y")) {
		t.Fatalf("second enqueue should be dropped")
	}
}

func TestRunProcessesQueuedMessagesAndStops(t *testing.T) {
	store := memory.NewReadingStore()
	m := newMonitor(t, store, newAlerts(t, &recordingNotifier{}), &stubDispatcher{}, testConfig())
	sub := &captureSubscriber{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, sub) }()

	deadline := time.Now().Add(2 * time.Second)
	for sub.get() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("subscribe not called")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sub.topic != base+"/#" {
		t.Fatalf("unexpected subscription %q", sub.topic)
	}
	sub.get()(msg(base+"/dough-1/pub", "From: DoughMoisture Moisture: 64 Hydration: 0.7"))

	for {
		latest, _ := store.Latest(context.Background(), telemetry.MetricDoughMoisture)
		if latest != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule = "every now and then"
	m := newMonitor(t, memory.NewReadingStore(), newAlerts(t, &recordingNotifier{}), &stubDispatcher{}, cfg)
	if err := m.Run(context.Background(), &captureSubscriber{}); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestNewValidation(t *testing.T) {
	alerts := newAlerts(t, &recordingNotifier{})
	if _, err := New(testConfig(), nil, alerts, &stubDispatcher{}); err == nil {
		t.Fatalf("expected nil store error")
	}
	cfg := testConfig()
	cfg.QueueSize = 0
	if _, err := New(cfg, memory.NewReadingStore(), alerts, &stubDispatcher{}); err == nil {
		t.Fatalf("expected queue size error")
	}
}
