package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	alarms "proofing-monitor/internal/alarms/domain"
	alarmmemory "proofing-monitor/internal/alarms/infrastructure/memory"
	telemetry "proofing-monitor/internal/telemetry/domain"
	"proofing-monitor/internal/telemetry/infrastructure/memory"
)

type stubStates struct {
	states []alarms.AlertState
}

func (s stubStates) States() []alarms.AlertState { return s.states }

func seedStore(t *testing.T) *memory.ReadingStore {
	t.Helper()
	store := memory.NewReadingStore()
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, v := range []float64{29.5, 33.5} {
		value := v
		r := &telemetry.Reading{TS: ts.Add(time.Duration(i) * time.Minute), Device: "AirEnv", Metric: telemetry.MetricAirTemperature, ValueNumeric: &value}
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	raw := "err"
	if err := store.Append(context.Background(), &telemetry.Reading{TS: ts, Device: "DHT-2", Metric: "DHT-2", ValueText: &raw}); err != nil {
		t.Fatalf("append raw: %v", err)
	}
	return store
}

func TestLatestHandler(t *testing.T) {
	handler, err := NewLatestHandler(seedStore(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/readings/latest?metric=AirEnv_Temperature", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got telemetry.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ValueNumeric == nil || *got.ValueNumeric != 33.5 {
		t.Fatalf("unexpected reading %+v", got)
	}

	cases := []struct {
		method string
		url    string
		code   int
	}{
		{http.MethodGet, "/api/v1/readings/latest", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/readings/latest?metric=OvenTemp", http.StatusNotFound},
		{http.MethodPost, "/api/v1/readings/latest?metric=OvenTemp", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.url, nil))
		if rec.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.url, tc.code, rec.Code)
		}
	}
}

func TestExportXLSXHandler(t *testing.T) {
	handler, err := NewExportXLSXHandler(seedStore(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/readings/export.xlsx?metric=AirEnv_Temperature", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	metric, _ := f.GetCellValue("readings", "B1")
	if metric != telemetry.MetricAirTemperature {
		t.Fatalf("unexpected metric cell %q", metric)
	}
	value, _ := f.GetCellValue("readings", "D5")
	if value != "33.5" {
		t.Fatalf("unexpected value cell %q", value)
	}
	ts, _ := f.GetCellValue("readings", "B4")
	if ts != "2026-03-01 08:00:00" {
		t.Fatalf("unexpected timestamp cell %q", ts)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/readings/export.xlsx", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBuildSeriesXLSXKeepsRawText(t *testing.T) {
	raw := "err"
	data, err := BuildSeriesXLSX("DHT-2", []telemetry.Reading{{ID: 7, Metric: "DHT-2", ValueText: &raw}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("readings", "D4"); v != "" {
		t.Fatalf("expected empty numeric cell, got %q", v)
	}
	if v, _ := f.GetCellValue("readings", "E4"); v != "err" {
		t.Fatalf("expected raw text, got %q", v)
	}
}

func TestReportHandler(t *testing.T) {
	history := alarmmemory.NewHistoryRepository()
	_ = history.Append(context.Background(), &alarms.HistoryRecord{
		Level:   string(alarms.EventAlert),
		Message: "Air temperature out of range: 33.5°C (target 27.0–32.0°C)",
	})
	states := stubStates{states: []alarms.AlertState{
		{Key: alarms.KeyAirTemperature, Armed: true, Bad: true, LastValue: 33.5, FiredAt: time.Now()},
		{Key: alarms.KeyAirHumidity, Armed: true, LastValue: 75},
	}}
	handler, err := NewReportHandler(seedStore(t), states, history, []string{telemetry.MetricAirTemperature, telemetry.MetricOvenTemp})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report.pdf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a pdf")
	}
}

func TestNewHandlersRejectNil(t *testing.T) {
	if _, err := NewLatestHandler(nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewExportXLSXHandler(nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewReportHandler(memory.NewReadingStore(), nil, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
