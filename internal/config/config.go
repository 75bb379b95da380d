package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/logging"
	"proofing-monitor/internal/platform/sqldb"
)

// Config is the process configuration. Load returns it by value; callers pass it down unchanged.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Polling PollingConfig `yaml:"polling"`
	Alarms  AlarmsConfig  `yaml:"alarms"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Log     LogConfig     `yaml:"log"`
}

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	QoS       byte   `yaml:"qos"`
	TopicBase string `yaml:"topic_base"`
}

// PollingConfig drives the periodic cycle.
type PollingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	DispatchAfter time.Duration `yaml:"dispatch_after"`
	// Schedule is an optional cron expression. Empty means "@every <interval>".
	Schedule string `yaml:"schedule"`
}

// AlarmsConfig controls alert emission.
type AlarmsConfig struct {
	PublishExternal bool               `yaml:"publish_external"`
	Retain          bool               `yaml:"retain"`
	Template        string             `yaml:"template"`
	Thresholds      []alarms.Threshold `yaml:"thresholds"`
}

// StorageConfig selects the SQL driver.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig holds the API listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// IngestConfig sizes the queue between the transport and the worker.
type IngestConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

// KafkaConfig enables alert forwarding when brokers are set.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AlertTopic string   `yaml:"alert_topic"`
}

// LogConfig sets the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:    "broker.hivemq.com",
			Port:      1883,
			ClientID:  "proofing-monitor",
			TopicBase: "pr/Proofing/BakeryA",
		},
		Polling: PollingConfig{
			Interval:      10 * time.Second,
			DispatchAfter: 5 * time.Second,
		},
		Alarms: AlarmsConfig{
			Thresholds: alarms.DefaultThresholds(),
		},
		Storage: StorageConfig{
			Driver: sqldb.DriverSQLite,
			DSN:    "data/proofing.db",
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Ingest: IngestConfig{QueueSize: 256, EnqueueTimeout: 2 * time.Second},
		Kafka:  KafkaConfig{AlertTopic: "proofing.alerts"},
		Log:    LogConfig{Level: "info", Format: logging.FormatJSON},
	}
}

// Load builds the configuration from defaults, the YAML file named by PROOFING_CONFIG and
// environment overrides, then validates it.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("PROOFING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.MQTT.TopicBase = strings.TrimRight(cfg.MQTT.TopicBase, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. A thresholds list in the file replaces the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Alarms.Thresholds = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if len(cfg.Alarms.Thresholds) == 0 {
		cfg.Alarms.Thresholds = alarms.DefaultThresholds()
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("config: mqtt broker required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("config: invalid mqtt port %d", c.MQTT.Port)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("config: invalid mqtt qos %d", c.MQTT.QoS)
	}
	if strings.TrimRight(c.MQTT.TopicBase, "/") == "" {
		return errors.New("config: topic base required")
	}
	if c.Polling.Interval <= 0 {
		return errors.New("config: polling interval must be positive")
	}
	if c.Polling.DispatchAfter < 0 || c.Polling.DispatchAfter >= c.Polling.Interval {
		return errors.New("config: dispatch_after must be within the polling interval")
	}
	switch c.Storage.Driver {
	case sqldb.DriverSQLite, sqldb.DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("config: storage dsn required")
	}
	if c.Ingest.QueueSize <= 0 {
		return errors.New("config: ingest queue_size must be positive")
	}
	if c.Ingest.EnqueueTimeout <= 0 {
		return errors.New("config: ingest enqueue_timeout must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AlertTopic == "" {
		return errors.New("config: kafka alert_topic required when brokers are set")
	}
	if _, err := alarms.NewEvaluator(c.Alarms.Thresholds); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AlarmTopic is where alert transitions are published.
func (c Config) AlarmTopic() string {
	return c.MQTT.TopicBase + "/alarm"
}

// SubscribeTopic covers every device under the base.
func (c Config) SubscribeTopic() string {
	return c.MQTT.TopicBase + "/#"
}

// ActuatorTopic is the fallback topic for commands to devices without a pub topic.
func (c Config) ActuatorTopic() string {
	return c.MQTT.TopicBase + "/actuator"
}

// CronSpec returns the polling schedule.
func (c Config) CronSpec() string {
	if c.Polling.Schedule != "" {
		return c.Polling.Schedule
	}
	return "@every " + c.Polling.Interval.String()
}

func applyEnv(cfg *Config) error {
	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicBase = getenvDefault("TOPIC_BASE", cfg.MQTT.TopicBase)
	cfg.Storage.Driver = getenvDefault("DB_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getenvDefault("DATABASE_URL", cfg.Storage.DSN)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Kafka.AlertTopic = getenvDefault("KAFKA_ALERT_TOPIC", cfg.Kafka.AlertTopic)
	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}

	var err error
	if cfg.MQTT.Port, err = getenvInt("MQTT_PORT", cfg.MQTT.Port); err != nil {
		return err
	}
	if cfg.Polling.Interval, err = getenvDuration("POLL_INTERVAL", cfg.Polling.Interval); err != nil {
		return err
	}
	if cfg.Polling.DispatchAfter, err = getenvDuration("DISPATCH_AFTER", cfg.Polling.DispatchAfter); err != nil {
		return err
	}
	if cfg.Alarms.PublishExternal, err = getenvBool("ALARM_PUBLISH_EXTERNAL", cfg.Alarms.PublishExternal); err != nil {
		return err
	}
	if cfg.Alarms.Retain, err = getenvBool("ALARM_RETAIN", cfg.Alarms.Retain); err != nil {
		return err
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

// getenvDuration accepts Go durations ("15s") or bare seconds ("15").
func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
