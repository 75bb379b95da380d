package apihttp

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarms "proofing-monitor/internal/alarms/domain"
	telemetry "proofing-monitor/internal/telemetry/domain"
)

// Report is the content of the proofing run PDF.
type Report struct {
	GeneratedAt time.Time
	Latest      []telemetry.Reading
	States      []alarms.AlertState
	History     []alarms.HistoryRecord
}

// BuildSeriesXLSX renders the readings of one metric as a spreadsheet.
func BuildSeriesXLSX(metric string, readings []telemetry.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "readings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Metric")
	_ = f.SetCellValue(sheet, "B1", metric)
	_ = f.SetCellValue(sheet, "A3", "ID")
	_ = f.SetCellValue(sheet, "B3", "Timestamp (UTC)")
	_ = f.SetCellValue(sheet, "C3", "Device")
	_ = f.SetCellValue(sheet, "D3", "Value")
	_ = f.SetCellValue(sheet, "E3", "Raw")
	for i, r := range readings {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), r.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.TS.UTC().Format(telemetry.TimeLayout))
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.Device)
		if r.ValueNumeric != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), *r.ValueNumeric)
		}
		if r.ValueText != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), *r.ValueText)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportPDF renders latest values, alert states and recent alert history.
func BuildReportPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Proofing Run Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Metric", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Timestamp (UTC)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, r := range report.Latest {
		pdf.CellFormat(60, 6, r.Metric, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, readingValue(r), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, r.TS.UTC().Format(telemetry.TimeLayout), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Alert", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Last value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Fired at (UTC)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, s := range report.States {
		fired := ""
		if !s.FiredAt.IsZero() {
			fired = s.FiredAt.UTC().Format(telemetry.TimeLayout)
		}
		pdf.CellFormat(50, 6, s.Key, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, stateLabel(s), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, alarms.FormatBound(s.LastValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fired, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	if len(report.History) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Recent alerts")
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 9)
		for _, h := range report.History {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s  [%s]  %s", h.TS.UTC().Format(telemetry.TimeLayout), h.Level, h.Message)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readingValue(r telemetry.Reading) string {
	if r.ValueNumeric != nil {
		return alarms.FormatBound(*r.ValueNumeric)
	}
	if r.ValueText != nil {
		return *r.ValueText
	}
	return "-"
}

func stateLabel(s alarms.AlertState) string {
	switch {
	case !s.Armed:
		return "unarmed"
	case s.Bad:
		return "alert"
	default:
		return "ok"
	}
}
