package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	alarmapp "proofing-monitor/internal/alarms/application"
	alarms "proofing-monitor/internal/alarms/domain"
	alarmstore "proofing-monitor/internal/alarms/infrastructure/sqlstore"
	alarmhttp "proofing-monitor/internal/alarms/interfaces/http"
	alarmnotify "proofing-monitor/internal/alarms/notify"
	apihttp "proofing-monitor/internal/api/http"
	commandsapp "proofing-monitor/internal/commands/application"
	commandshttp "proofing-monitor/internal/commands/interfaces/http"
	"proofing-monitor/internal/config"
	"proofing-monitor/internal/logging"
	devicestore "proofing-monitor/internal/masterdata/infrastructure/sqlstore"
	"proofing-monitor/internal/monitor"
	"proofing-monitor/internal/observability/metrics"
	"proofing-monitor/internal/platform/sqldb"
	telemetry "proofing-monitor/internal/telemetry/domain"
	readingstore "proofing-monitor/internal/telemetry/infrastructure/sqlstore"
	"proofing-monitor/internal/transport/mqtt"
)

const shutdownTimeout = 10 * time.Second

// reportMetrics are listed in the run report, thresholded or not.
var reportMetrics = []string{
	telemetry.MetricAirTemperature,
	telemetry.MetricAirHumidity,
	telemetry.MetricDoughMoisture,
	telemetry.MetricHydration,
	telemetry.MetricDoughRise,
	telemetry.MetricDoughVolume,
	telemetry.MetricTimerHours,
	telemetry.MetricTimerRemainingSeconds,
	telemetry.MetricOvenTemp,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", logging.FormatJSON)
		bootLogger.Fatal().Err(err).Msg("config error")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqldb.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("db open error")
	}
	defer db.Close()
	dialect := sqldb.DialectFor(cfg.Storage.Driver)
	if err := sqldb.Migrate(ctx, db, dialect); err != nil {
		logger.Fatal().Err(err).Msg("db migrate error")
	}

	metrics.Init(db, logging.Component(logger, "metrics"))

	readings := readingstore.NewReadingStore(db, dialect)
	devices := devicestore.NewDeviceRegistry(db, dialect)
	history := alarmstore.NewHistoryRepository(db, dialect)

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		Port:     cfg.MQTT.Port,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      cfg.MQTT.QoS,
	}, logging.Component(logger, "mqtt"))
	if err != nil {
		logger.Fatal().Err(err).Msg("mqtt client error")
	}
	if err := client.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("mqtt connect error")
	}

	alarmBroker := alarmhttp.NewSSEBroker()
	notifiers, closeSinks := buildNotifiers(cfg, client, history, alarmBroker, logger)
	defer closeSinks()

	evaluator, err := alarms.NewEvaluator(cfg.Alarms.Thresholds)
	if err != nil {
		logger.Fatal().Err(err).Msg("threshold error")
	}
	alarmService, err := alarmapp.NewService(evaluator,
		alarmapp.WithNotifier(notifiers),
		alarmapp.WithRetain(cfg.Alarms.Retain),
		alarmapp.WithLogger(logging.Component(logger, "alarms")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("alarm service error")
	}

	dispatcher, err := commandsapp.NewDispatcher(devices, client, cfg.ActuatorTopic(),
		commandsapp.WithLogger(logging.Component(logger, "dispatcher")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher error")
	}

	mon, err := monitor.New(monitor.Config{
		SubscribeTopic: cfg.SubscribeTopic(),
		AlarmTopic:     cfg.AlarmTopic(),
		QueueSize:      cfg.Ingest.QueueSize,
		EnqueueTimeout: cfg.Ingest.EnqueueTimeout,
		DispatchAfter:  cfg.Polling.DispatchAfter,
		Schedule:       cfg.CronSpec(),
	}, readings, alarmService, dispatcher, monitor.WithLogger(logging.Component(logger, "monitor")))
	if err != nil {
		logger.Fatal().Err(err).Msg("monitor error")
	}

	mux, err := buildMux(readings, devices, history, alarmService, alarmBroker)
	if err != nil {
		logger.Fatal().Err(err).Msg("http handler error")
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           loggingMiddleware(mux, logging.Component(logger, "http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	if err := mon.Run(ctx, client); err != nil {
		logger.Error().Err(err).Msg("monitor run error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown error")
	}
	client.Close(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func buildNotifiers(cfg config.Config, client *mqtt.Client, history alarms.HistoryRepository, broker *alarmhttp.SSEBroker, logger zerolog.Logger) (*alarmnotify.MultiNotifier, func()) {
	sinkLogger := logging.Component(logger, "alert_sink")
	notifiers := alarmnotify.NewMultiNotifier(alarmnotify.NewLogNotifier(sinkLogger), broker)

	historyNotifier, err := alarmnotify.NewHistoryNotifier(history, sinkLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("history notifier error")
	}
	notifiers.Add(historyNotifier)

	tpl, err := alarmnotify.NewTemplate(cfg.Alarms.Template)
	if err != nil {
		logger.Fatal().Err(err).Msg("alarm template error")
	}
	mqttNotifier, err := alarmnotify.NewMQTTNotifier(client, cfg.AlarmTopic(), cfg.Alarms.PublishExternal,
		alarmnotify.WithTemplate(tpl),
		alarmnotify.WithLogger(sinkLogger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("mqtt notifier error")
	}
	notifiers.Add(mqttNotifier)

	closeSinks := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := alarmnotify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka writer error")
		}
		kafkaNotifier, err := alarmnotify.NewKafkaNotifier(writer, sinkLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka notifier error")
		}
		notifiers.Add(kafkaNotifier)
		closeSinks = func() {
			if err := writer.Close(); err != nil {
				logger.Warn().Err(err).Msg("kafka writer close error")
			}
		}
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.AlertTopic).Msg("kafka alert forwarding enabled")
	}
	return notifiers, closeSinks
}

func buildMux(readings telemetry.Store, devices *devicestore.DeviceRegistry, history alarms.HistoryRepository, alarmService *alarmapp.Service, broker *alarmhttp.SSEBroker) (*http.ServeMux, error) {
	latestHandler, err := apihttp.NewLatestHandler(readings)
	if err != nil {
		return nil, err
	}
	exportHandler, err := apihttp.NewExportXLSXHandler(readings)
	if err != nil {
		return nil, err
	}
	reportHandler, err := apihttp.NewReportHandler(readings, alarmService, history, reportMetrics)
	if err != nil {
		return nil, err
	}
	alarmHandler, err := alarmhttp.NewHandler(alarmService, history)
	if err != nil {
		return nil, err
	}
	deviceHandler, err := commandshttp.NewHandler(devices)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings/latest", latestHandler)
	mux.Handle("/api/v1/readings/export.xlsx", exportHandler)
	mux.Handle("/api/v1/report.pdf", reportHandler)
	mux.Handle("/api/v1/alerts", alarmHandler)
	mux.Handle("/api/v1/alerts/history", alarmHandler)
	mux.Handle("/api/v1/alerts/stream", alarmhttp.NewStreamHandler(broker, alarmService))
	mux.Handle("/api/v1/devices", deviceHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux, nil
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working through the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
