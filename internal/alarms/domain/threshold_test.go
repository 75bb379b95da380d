package alarms

import "testing"

func TestEvaluateRangeInclusive(t *testing.T) {
	e, err := NewEvaluator(DefaultThresholds())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	cases := []struct {
		value float64
		ok    bool
	}{
		{26.9, false},
		{27, true},
		{30, true},
		{32, true},
		{32.1, false},
	}
	for _, tc := range cases {
		v := e.Evaluate("AirEnv_Temperature", tc.value)
		if len(v) != 1 {
			t.Fatalf("expected one verdict, got %d", len(v))
		}
		if !v[0].Defined || v[0].OK != tc.ok {
			t.Fatalf("value %v: expected ok=%v, got %+v", tc.value, tc.ok, v[0])
		}
	}
}

func TestEvaluateUnknownMetric(t *testing.T) {
	e, _ := NewEvaluator(DefaultThresholds())
	if v := e.Evaluate("Nope", 1); v != nil {
		t.Fatalf("expected no verdicts, got %+v", v)
	}
	var nilEval *Evaluator
	if v := nilEval.Evaluate("OvenTemp", 1); v != nil {
		t.Fatalf("nil evaluator should return nil")
	}
}

func TestDefaultMessages(t *testing.T) {
	e, err := NewEvaluator(DefaultThresholds())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	cases := []struct {
		metric string
		value  float64
		want   string
	}{
		{"AirEnv_Temperature", 33.5, "Air temperature out of range: 33.5°C (target 27.0–32.0°C)"},
		{"AirEnv_Temperature", 30, "Air temperature back in range"},
		{"AirEnv_Humidity", 90, "Air humidity out of range: 90% (target 70.0–85.0%)"},
		{"DoughMoisture", 80, "Dough moisture out of range: 80% (target 60.0–75.0%)"},
		{"Hydration", 0.9, "Hydration ratio out of range: 0.90 (target 0.55–0.8)"},
		{"DoughRise", 60, "Dough rise below target: 60% (target ≥ 75.0%)"},
		{"DoughRise", 80, "Dough rise reached target"},
		{"DoughVolume", 1.9, "Dough has proofed enough (volume ×1.90 ≥ 1.8)."},
		{"DoughVolume", 1.2, "Dough volume below proofing target"},
		{"TimerHours", 3.5, "Proofing time exceeded 3.50 h (> 3.0 h)."},
		{"OvenTemp", 185, "Oven reached target temperature: 185°C (≥ 180°C)."},
		{"OvenTemp", 150, "Oven temperature below target"},
	}
	for _, tc := range cases {
		v := e.Evaluate(tc.metric, tc.value)
		if len(v) != 1 {
			t.Fatalf("%s: expected one verdict", tc.metric)
		}
		if v[0].Reason != tc.want {
			t.Fatalf("%s=%v: got %q want %q", tc.metric, tc.value, v[0].Reason, tc.want)
		}
	}
}

func TestAtLeastAndReached(t *testing.T) {
	e, _ := NewEvaluator(DefaultThresholds())
	if v := e.Evaluate("DoughRise", 75); !v[0].OK {
		t.Fatalf("rise at target should be ok")
	}
	if v := e.Evaluate("DoughVolume", 1.8); v[0].OK {
		t.Fatalf("volume at target should alert")
	}
	if v := e.Evaluate("TimerHours", 3.0); !v[0].OK {
		t.Fatalf("3.0 h should be within limit")
	}
}

func TestNewEvaluatorValidation(t *testing.T) {
	cases := []Threshold{
		{Metric: "x", Kind: KindRange, Min: float(1)},
		{Key: "a", Kind: KindRange, Min: float(1)},
		{Key: "a", Metric: "x", Kind: "between"},
		{Key: "a", Metric: "x", Kind: KindRange},
		{Key: "a", Metric: "x", Kind: KindRange, Min: float(2), Max: float(1)},
		{Key: "a", Metric: "x", Kind: KindReached},
		{Key: "a", Metric: "x", Kind: KindRange, Min: float(1), BadMessage: "{{.Value"},
	}
	for i, th := range cases {
		if _, err := NewEvaluator([]Threshold{th}); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	dup := []Threshold{
		{Key: "a", Metric: "x", Kind: KindRange, Min: float(1)},
		{Key: "a", Metric: "y", Kind: KindRange, Min: float(1)},
	}
	if _, err := NewEvaluator(dup); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestFormatBound(t *testing.T) {
	cases := map[float64]string{27: "27.0", 0.8: "0.8", 1.8: "1.8", -3: "-3.0", 0.55: "0.55"}
	for in, want := range cases {
		if got := FormatBound(in); got != want {
			t.Fatalf("FormatBound(%v) = %q want %q", in, got, want)
		}
	}
}

func TestMetricsOrder(t *testing.T) {
	e, _ := NewEvaluator(DefaultThresholds())
	metrics := e.Metrics()
	if len(metrics) != 8 || metrics[0] != "AirEnv_Temperature" || metrics[7] != "OvenTemp" {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
}
