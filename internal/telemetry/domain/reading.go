package telemetry

import (
	"context"
	"errors"
	"iter"
	"time"
)

// Metric keys produced by the classifier.
const (
	MetricAirTemperature        = "AirEnv_Temperature"
	MetricAirHumidity           = "AirEnv_Humidity"
	MetricDoughMoisture         = "DoughMoisture"
	MetricHydration             = "Hydration"
	MetricDoughRise             = "DoughRise"
	MetricDoughVolume           = "DoughVolume"
	MetricTimerHours            = "TimerHours"
	MetricTimerRemainingSeconds = "TimerRemainingSeconds"
	MetricOvenTemp              = "OvenTemp"
	MetricElectricityMeter      = "ElectricityMeter"
	MetricSensitivityMeter      = "SensitivityMeter"
)

// TimeLayout is the on-disk timestamp format, second resolution.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrEmptyMetric = errors.New("telemetry: empty metric")
	ErrNilReading  = errors.New("telemetry: nil reading")
)

// Reading is one stored sample.
type Reading struct {
	ID     int64     `json:"id"`
	TS     time.Time `json:"ts"`
	Device string    `json:"device,omitempty"`
	Metric string    `json:"metric"`

	ValueNumeric *float64 `json:"value"`
	ValueText    *string  `json:"raw,omitempty"`
	Units        string   `json:"units,omitempty"`
}

// Validate checks reading invariants before append.
func (r *Reading) Validate() error {
	if r == nil {
		return ErrNilReading
	}
	if r.Metric == "" {
		return ErrEmptyMetric
	}
	return nil
}

// Store is the append-only metric log.
type Store interface {
	// Append persists r and assigns r.ID. The timestamp is truncated to
	// seconds and clamped so it never moves backwards within a metric.
	Append(ctx context.Context, r *Reading) error
	// Latest returns the newest reading of metric, or nil when there is none.
	Latest(ctx context.Context, metric string) (*Reading, error)
	// Series yields readings of metric in insertion order.
	Series(ctx context.Context, metric string) iter.Seq2[Reading, error]
}

// NormalizeTS truncates ts to seconds in UTC and clamps it to prev.
func NormalizeTS(ts, prev time.Time) time.Time {
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC().Truncate(time.Second)
	if !prev.IsZero() && ts.Before(prev) {
		return prev
	}
	return ts
}
