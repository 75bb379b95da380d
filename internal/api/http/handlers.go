package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/observability/metrics"
	telemetry "proofing-monitor/internal/telemetry/domain"
)

const reportHistoryLimit = 50

// AlertStates exposes the current alert states.
type AlertStates interface {
	States() []alarms.AlertState
}

// LatestHandler serves the newest reading of a metric.
type LatestHandler struct {
	store telemetry.Store
}

// NewLatestHandler constructs a LatestHandler.
func NewLatestHandler(store telemetry.Store) (*LatestHandler, error) {
	if store == nil {
		return nil, errors.New("apihttp: nil store")
	}
	return &LatestHandler{store: store}, nil
}

// ServeHTTP handles GET /api/v1/readings/latest?metric=.
func (h *LatestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}
	reading, err := h.store.Latest(r.Context(), metric)
	if err != nil {
		http.Error(w, "query latest error", http.StatusInternalServerError)
		return
	}
	if reading == nil {
		http.Error(w, "no readings", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reading)
}

// ExportXLSXHandler serves a metric's series as a spreadsheet.
type ExportXLSXHandler struct {
	store telemetry.Store
}

// NewExportXLSXHandler constructs an ExportXLSXHandler.
func NewExportXLSXHandler(store telemetry.Store) (*ExportXLSXHandler, error) {
	if store == nil {
		return nil, errors.New("apihttp: nil store")
	}
	return &ExportXLSXHandler{store: store}, nil
}

// ServeHTTP handles GET /api/v1/readings/export.xlsx?metric=.
func (h *ExportXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	readings, err := collectSeries(r.Context(), h.store, metric)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, "query series error", http.StatusInternalServerError)
		return
	}
	data, err := BuildSeriesXLSX(metric, readings)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, "render xlsx error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+metric+`.xlsx"`)
	_, _ = w.Write(data)
}

// ReportHandler serves the proofing run report.
type ReportHandler struct {
	store   telemetry.Store
	states  AlertStates
	history alarms.HistoryRepository
	metrics []string
	now     func() time.Time
}

// NewReportHandler constructs a ReportHandler. history may be nil.
func NewReportHandler(store telemetry.Store, states AlertStates, history alarms.HistoryRepository, reportMetrics []string) (*ReportHandler, error) {
	if store == nil {
		return nil, errors.New("apihttp: nil store")
	}
	if states == nil {
		return nil, errors.New("apihttp: nil alert states")
	}
	return &ReportHandler{
		store:   store,
		states:  states,
		history: history,
		metrics: reportMetrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP handles GET /api/v1/report.pdf.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	report := Report{GeneratedAt: h.now(), States: h.states.States()}
	for _, metric := range h.metrics {
		reading, err := h.store.Latest(r.Context(), metric)
		if err != nil {
			metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
			http.Error(w, "query latest error", http.StatusInternalServerError)
			return
		}
		if reading != nil {
			report.Latest = append(report.Latest, *reading)
		}
	}
	if h.history != nil {
		records, err := h.history.ListRecent(r.Context(), reportHistoryLimit)
		if err != nil {
			metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
			http.Error(w, "query history error", http.StatusInternalServerError)
			return
		}
		report.History = records
	}

	data, err := BuildReportPDF(report)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		http.Error(w, "render pdf error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="proofing-report.pdf"`)
	_, _ = w.Write(data)
}

func collectSeries(ctx context.Context, store telemetry.Store, metric string) ([]telemetry.Reading, error) {
	var out []telemetry.Reading
	for reading, err := range store.Series(ctx, metric) {
		if err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, nil
}
