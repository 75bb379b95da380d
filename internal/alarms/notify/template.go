package notify

import (
	"bytes"
	"errors"
	"text/template"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
)

// DefaultTemplate publishes the alert text unchanged.
const DefaultTemplate = `{{.Message}}`

// TemplateData provides fields for rendering external alert payloads.
type TemplateData struct {
	ID         string
	Key        string
	Kind       string
	Message    string
	Metric     string
	Value      string
	OccurredAt string
}

// Template renders external alert payloads.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a payload template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-payload").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTemplateData(event alarms.AlertEvent) TemplateData {
	value := ""
	if event.Value != nil {
		value = alarms.FormatBound(*event.Value)
	}
	return TemplateData{
		ID:         event.ID,
		Key:        event.Key,
		Kind:       string(event.Kind),
		Message:    event.Message,
		Metric:     event.Metric,
		Value:      value,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
	}
}
