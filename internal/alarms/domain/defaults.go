package alarms

// Alert keys of the default threshold table.
const (
	KeyAirTemperature  = "air-temperature"
	KeyAirHumidity     = "air-humidity"
	KeyDoughMoisture   = "dough-moisture"
	KeyHydration       = "hydration"
	KeyDoughRise       = "dough-rise"
	KeyDoughVolume     = "dough-volume"
	KeyProofTime       = "proof-time"
	KeyOvenTemperature = "oven-temperature"
)

// Notice keys for special process events.
const (
	NoticeTimerFinished = "timer-finished"
	NoticeOvenReady     = "oven-ready"
)

var noticeMessages = map[string]string{
	NoticeTimerFinished: "Proofing time completed. Proceed to baking.",
	NoticeOvenReady:     "Oven ready.",
}

// NoticeMessage returns the alert text for a special event.
func NoticeMessage(key string) (string, bool) {
	msg, ok := noticeMessages[key]
	return msg, ok
}

func float(v float64) *float64 { return &v }

// DefaultThresholds returns the proofing operating windows.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{
			Key: KeyAirTemperature, Metric: "AirEnv_Temperature", Kind: KindRange,
			Min: float(27), Max: float(32),
			BadMessage:   `Air temperature out of range: {{printf "%.1f" .Value}}°C (target {{.Min}}–{{.Max}}°C)`,
			ClearMessage: "Air temperature back in range",
		},
		{
			Key: KeyAirHumidity, Metric: "AirEnv_Humidity", Kind: KindRange,
			Min: float(70), Max: float(85),
			BadMessage:   `Air humidity out of range: {{printf "%.0f" .Value}}% (target {{.Min}}–{{.Max}}%)`,
			ClearMessage: "Air humidity back in range",
		},
		{
			Key: KeyDoughMoisture, Metric: "DoughMoisture", Kind: KindRange,
			Min: float(60), Max: float(75),
			BadMessage:   `Dough moisture out of range: {{printf "%.0f" .Value}}% (target {{.Min}}–{{.Max}}%)`,
			ClearMessage: "Dough moisture back in range",
		},
		{
			Key: KeyHydration, Metric: "Hydration", Kind: KindRange,
			Min: float(0.55), Max: float(0.80),
			BadMessage:   `Hydration ratio out of range: {{printf "%.2f" .Value}} (target {{.Min}}–{{.Max}})`,
			ClearMessage: "Hydration ratio back in range",
		},
		{
			Key: KeyDoughRise, Metric: "DoughRise", Kind: KindAtLeast,
			Target:       float(75),
			BadMessage:   `Dough rise below target: {{printf "%.0f" .Value}}% (target ≥ {{.Target}}%)`,
			ClearMessage: "Dough rise reached target",
		},
		{
			Key: KeyDoughVolume, Metric: "DoughVolume", Kind: KindReached,
			Target:       float(1.8),
			BadMessage:   `Dough has proofed enough (volume ×{{printf "%.2f" .Value}} ≥ {{.Target}}).`,
			ClearMessage: "Dough volume below proofing target",
		},
		{
			Key: KeyProofTime, Metric: "TimerHours", Kind: KindRange,
			Max:          float(3.0),
			BadMessage:   `Proofing time exceeded {{printf "%.2f" .Value}} h (> {{.Max}} h).`,
			ClearMessage: "Proofing time back within limit",
		},
		{
			Key: KeyOvenTemperature, Metric: "OvenTemp", Kind: KindReached,
			Target:       float(180),
			BadMessage:   `Oven reached target temperature: {{printf "%.0f" .Value}}°C (≥ {{printf "%.0f" .TargetValue}}°C).`,
			ClearMessage: "Oven temperature below target",
		},
	}
}
