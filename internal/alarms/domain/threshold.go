package alarms

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// Kind selects how a threshold compares a value.
type Kind string

const (
	// KindRange is OK inside an inclusive [min, max] window. Either bound may be open.
	KindRange Kind = "range"
	// KindAtLeast is OK when value >= target.
	KindAtLeast Kind = "at_least"
	// KindReached alerts once value >= target.
	KindReached Kind = "reached"
)

// Valid returns true when kind is supported.
func (k Kind) Valid() bool {
	switch k {
	case KindRange, KindAtLeast, KindReached:
		return true
	default:
		return false
	}
}

// Threshold binds an alert key to a metric and an operating window.
type Threshold struct {
	Key          string   `yaml:"key"`
	Metric       string   `yaml:"metric"`
	Kind         Kind     `yaml:"kind"`
	Min          *float64 `yaml:"min,omitempty"`
	Max          *float64 `yaml:"max,omitempty"`
	Target       *float64 `yaml:"target,omitempty"`
	BadMessage   string   `yaml:"bad_message,omitempty"`
	ClearMessage string   `yaml:"clear_message,omitempty"`
}

// Validate checks threshold invariants.
func (t Threshold) Validate() error {
	if t.Key == "" {
		return errors.New("threshold: empty key")
	}
	if t.Metric == "" {
		return fmt.Errorf("threshold %s: empty metric", t.Key)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("threshold %s: invalid kind %q", t.Key, t.Kind)
	}
	switch t.Kind {
	case KindRange:
		if t.Min == nil && t.Max == nil {
			return fmt.Errorf("threshold %s: range needs min or max", t.Key)
		}
		if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
			return fmt.Errorf("threshold %s: min above max", t.Key)
		}
	case KindAtLeast, KindReached:
		if t.Target == nil {
			return fmt.Errorf("threshold %s: target required", t.Key)
		}
	}
	return nil
}

// InRange reports whether value is inside the operating window.
func (t Threshold) InRange(value float64) bool {
	switch t.Kind {
	case KindRange:
		if t.Min != nil && value < *t.Min {
			return false
		}
		if t.Max != nil && value > *t.Max {
			return false
		}
		return true
	case KindAtLeast:
		return value >= *t.Target
	case KindReached:
		return value < *t.Target
	default:
		return true
	}
}

// Verdict is the outcome of checking one value against one threshold.
type Verdict struct {
	Defined bool
	Key     string
	Metric  string
	Value   float64
	OK      bool
	Reason  string
}

// TemplateData provides fields for rendering alert texts.
type TemplateData struct {
	Key         string
	Metric      string
	Value       float64
	Min         string
	Max         string
	Target      string
	MinValue    float64
	MaxValue    float64
	TargetValue float64
}

type compiled struct {
	threshold Threshold
	bad       *template.Template
	clear     *template.Template
}

// Evaluator maps metric values to verdicts using a fixed threshold table.
type Evaluator struct {
	thresholds []Threshold
	byMetric   map[string][]compiled
	metrics    []string
}

// NewEvaluator validates thresholds and parses their message templates.
func NewEvaluator(thresholds []Threshold) (*Evaluator, error) {
	e := &Evaluator{
		thresholds: make([]Threshold, 0, len(thresholds)),
		byMetric:   make(map[string][]compiled),
	}
	seen := make(map[string]struct{}, len(thresholds))
	for _, t := range thresholds {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Key]; dup {
			return nil, fmt.Errorf("threshold %s: duplicate key", t.Key)
		}
		seen[t.Key] = struct{}{}

		bad, err := parseMessage(t.Key+".bad", t.BadMessage, t.Key+" out of range: {{.Value}}")
		if err != nil {
			return nil, fmt.Errorf("threshold %s: bad message: %w", t.Key, err)
		}
		clear, err := parseMessage(t.Key+".clear", t.ClearMessage, t.Key+" back in range")
		if err != nil {
			return nil, fmt.Errorf("threshold %s: clear message: %w", t.Key, err)
		}
		if _, ok := e.byMetric[t.Metric]; !ok {
			e.metrics = append(e.metrics, t.Metric)
		}
		e.byMetric[t.Metric] = append(e.byMetric[t.Metric], compiled{threshold: t, bad: bad, clear: clear})
		e.thresholds = append(e.thresholds, t)
	}
	return e, nil
}

// Evaluate checks value against every threshold bound to metric.
// Metrics without thresholds return nil.
func (e *Evaluator) Evaluate(metric string, value float64) []Verdict {
	if e == nil {
		return nil
	}
	entries := e.byMetric[metric]
	if len(entries) == 0 {
		return nil
	}
	verdicts := make([]Verdict, 0, len(entries))
	for _, c := range entries {
		ok := c.threshold.InRange(value)
		tpl := c.bad
		if ok {
			tpl = c.clear
		}
		verdicts = append(verdicts, Verdict{
			Defined: true,
			Key:     c.threshold.Key,
			Metric:  metric,
			Value:   value,
			OK:      ok,
			Reason:  render(tpl, c.threshold, value),
		})
	}
	return verdicts
}

// Metrics lists metrics with at least one threshold, in configuration order.
func (e *Evaluator) Metrics() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.metrics))
	copy(out, e.metrics)
	return out
}

// Thresholds returns the configured table.
func (e *Evaluator) Thresholds() []Threshold {
	if e == nil {
		return nil
	}
	out := make([]Threshold, len(e.thresholds))
	copy(out, e.thresholds)
	return out
}

func parseMessage(name, text, fallback string) (*template.Template, error) {
	if text == "" {
		text = fallback
	}
	return template.New(name).Option("missingkey=error").Parse(text)
}

func render(tpl *template.Template, t Threshold, value float64) string {
	data := TemplateData{Key: t.Key, Metric: t.Metric, Value: value}
	if t.Min != nil {
		data.Min = FormatBound(*t.Min)
		data.MinValue = *t.Min
	}
	if t.Max != nil {
		data.Max = FormatBound(*t.Max)
		data.MaxValue = *t.Max
	}
	if t.Target != nil {
		data.Target = FormatBound(*t.Target)
		data.TargetValue = *t.Target
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("%s: %s", t.Key, FormatBound(value))
	}
	return buf.String()
}

// FormatBound renders a float as its shortest text with at least one decimal, so 27 reads "27.0"
// and 0.80 reads "0.8".
func FormatBound(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") && !strings.ContainsAny(s, "NI") {
		s += ".0"
	}
	return s
}
