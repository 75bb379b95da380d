package classifier

import (
	"regexp"
	"strconv"
	"strings"

	telemetry "proofing-monitor/internal/telemetry/domain"
)

// Event is a special process event carried by a payload.
type Event string

const (
	EventNone          Event = ""
	EventTimerFinished Event = "timer-finished"
	EventOvenReady     Event = "oven-ready"
)

// Sample is one extracted metric value.
type Sample struct {
	Device string
	Metric string
	Value  *float64
	Raw    *string
}

// Result is the outcome of classifying one payload.
type Result struct {
	Family  string
	Samples []Sample
	Event   Event
}

// Empty reports whether nothing was recognized.
func (r Result) Empty() bool {
	return len(r.Samples) == 0 && r.Event == EventNone
}

const number = `([-+]?\d+(?:\.\d+)?)`

var (
	reTemperature = regexp.MustCompile(`Temperature:\s*` + number)
	reHumidity    = regexp.MustCompile(`Humidity:\s*` + number)
	reMoisture    = regexp.MustCompile(`Moisture:\s*` + number)
	reHydration   = regexp.MustCompile(`Hydration:\s*` + number)
	reRise        = regexp.MustCompile(`Rise:\s*` + number)
	reVolume      = regexp.MustCompile(`Volume:\s*` + number)

	reTimerDone      = regexp.MustCompile(`(?i)done|finish|end`)
	reTimerHMS       = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})`)
	reTimerUnit      = regexp.MustCompile(`(?i)` + number + `\s*(hours|hour|hrs|hr|h|minutes|minute|min|m)\b`)
	reTimerRemaining = regexp.MustCompile(`(?i)Timer\s+remaining:\s*(\d+)`)

	reOvenTemp  = regexp.MustCompile(`(?i)(?:OvenTemp|Temp):\s*` + number)
	reOvenReady = regexp.MustCompile(`(?i)Oven\s+Ready:\s*1`)
)

type family struct {
	name     string
	suffixes []string
	markers  []string
	parse    func(payload string) Result
}

// families are tried in this order after the channel match.
var families = []family{
	{name: "airenv", suffixes: []string{"/env-1/pub"}, markers: []string{"AirEnv"}, parse: parseAirEnv},
	{name: "dough", suffixes: []string{"/dough-1/pub", "/doughH-1/pub"}, markers: []string{"DoughMoisture", "Moisture:"}, parse: parseDough},
	{name: "rise", suffixes: []string{"/rise-1/pub"}, markers: []string{"Rise:"}, parse: parseRise},
	{name: "volume", suffixes: []string{"/vol-1/pub"}, markers: []string{"VolumeSensor", "Volume:"}, parse: parseVolume},
	{name: "timer", suffixes: []string{"/timer-1/pub"}, markers: []string{"Timer"}, parse: parseTimer},
	{name: "oven", suffixes: []string{"/oven-1/pub"}, markers: []string{"Oven"}, parse: parseOven},
}

// Classify extracts metrics and special events from a payload received on channel.
// Unrecognized payloads yield an empty Result.
func Classify(channel, payload string) Result {
	tried := -1
	for i, f := range families {
		if hasSuffix(channel, f.suffixes) {
			if res := f.parse(payload); !res.Empty() {
				res.Family = f.name
				return res
			}
			tried = i
			break
		}
	}
	for i, f := range families {
		if i == tried || !containsAny(payload, f.markers) {
			continue
		}
		if res := f.parse(payload); !res.Empty() {
			res.Family = f.name
			return res
		}
	}
	if res := parseLegacyDHT(payload); !res.Empty() {
		return res
	}
	return parseLegacyMeter(payload)
}

func parseAirEnv(payload string) Result {
	var res Result
	res.add(telemetry.MetricAirTemperature, reTemperature, payload)
	res.add(telemetry.MetricAirHumidity, reHumidity, payload)
	return res
}

func parseDough(payload string) Result {
	var res Result
	res.add(telemetry.MetricDoughMoisture, reMoisture, payload)
	res.add(telemetry.MetricHydration, reHydration, payload)
	return res
}

func parseRise(payload string) Result {
	var res Result
	res.add(telemetry.MetricDoughRise, reRise, payload)
	return res
}

func parseVolume(payload string) Result {
	var res Result
	res.add(telemetry.MetricDoughVolume, reVolume, payload)
	return res
}

func parseTimer(payload string) Result {
	if reTimerDone.MatchString(payload) {
		return Result{Event: EventTimerFinished}
	}
	if m := reTimerHMS.FindStringSubmatch(payload); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		ss, _ := strconv.Atoi(m[3])
		hours := float64(h) + float64(mm)/60 + float64(ss)/3600
		return Result{Samples: []Sample{{Metric: telemetry.MetricTimerHours, Value: &hours}}}
	}
	if m := reTimerUnit.FindStringSubmatch(payload); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Result{}
		}
		if !strings.HasPrefix(strings.ToLower(m[2]), "h") {
			v /= 60
		}
		return Result{Samples: []Sample{{Metric: telemetry.MetricTimerHours, Value: &v}}}
	}
	if m := reTimerRemaining.FindStringSubmatch(payload); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Result{}
		}
		res := Result{Samples: []Sample{{Metric: telemetry.MetricTimerRemainingSeconds, Value: &v}}}
		if v == 0 {
			res.Event = EventTimerFinished
		}
		return res
	}
	return Result{}
}

func parseOven(payload string) Result {
	var res Result
	res.add(telemetry.MetricOvenTemp, reOvenTemp, payload)
	if reOvenReady.MatchString(payload) {
		res.Event = EventOvenReady
	}
	return res
}

// parseLegacyDHT handles "From: DHT-1 Temperature: 25 Humidity: 40".
func parseLegacyDHT(payload string) Result {
	if !strings.Contains(payload, "DHT") || !strings.Contains(payload, " Temperature: ") {
		return Result{}
	}
	_, rest, ok := strings.Cut(payload, "From: ")
	if !ok {
		return Result{}
	}
	device, rest, ok := strings.Cut(rest, " Temperature: ")
	if !ok || device == "" {
		return Result{}
	}
	raw, _, _ := strings.Cut(rest, " Humidity: ")
	return Result{
		Family:  "dht",
		Samples: []Sample{legacySample(device, device, raw)},
	}
}

// parseLegacyMeter handles "From: ElecMeter Electricity: 12 Sensitivity: 3".
func parseLegacyMeter(payload string) Result {
	if !strings.Contains(payload, "Meter") ||
		!strings.Contains(payload, " Electricity: ") ||
		!strings.Contains(payload, " Sensitivity: ") {
		return Result{}
	}
	_, rest, _ := strings.Cut(payload, " Electricity: ")
	elec, sens, ok := strings.Cut(rest, " Sensitivity: ")
	if !ok {
		return Result{}
	}
	device := ""
	if _, from, ok := strings.Cut(payload, "From: "); ok {
		device, _, _ = strings.Cut(from, " Electricity: ")
	}
	return Result{
		Family: "meter",
		Samples: []Sample{
			legacySample(device, telemetry.MetricElectricityMeter, elec),
			legacySample(device, telemetry.MetricSensitivityMeter, sens),
		},
	}
}

func legacySample(device, metric, raw string) Sample {
	s := Sample{Device: device, Metric: metric, Raw: &raw}
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		s.Value = &v
	}
	return s
}

func (r *Result) add(metric string, re *regexp.Regexp, payload string) {
	m := re.FindStringSubmatch(payload)
	if m == nil {
		return
	}
	v, err := strconv.ParseFloat(m[len(m)-1], 64)
	if err != nil {
		return
	}
	r.Samples = append(r.Samples, Sample{Metric: metric, Value: &v})
}

func hasSuffix(channel string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(channel, s) {
			return true
		}
	}
	return false
}

func containsAny(payload string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(payload, m) {
			return true
		}
	}
	return false
}
