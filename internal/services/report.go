package services

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

//go:embed templates/report.html
var reportTemplateText string

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateText))

const defaultSummary = "The system processed this document and generated structured insights."

type reportView struct {
	Filename  string
	Category  string
	Intent    string
	Summary   string
	Insights  []string
	Questions []string
	Actions   []string
	Themes    []string
}

// RenderReport renders the human readable HTML report for a finished result.
// All model supplied text is escaped by the template.
func RenderReport(source models.Location, result *models.ProcessDocumentResponse) ([]byte, error) {
	view := reportView{
		Filename: source.Filename(),
		Category: "UNCLASSIFIED",
		Intent:   models.Category("").Intent(),
		Summary:  defaultSummary,
	}
	if result.Classification != nil && result.Classification.Category != "" {
		view.Category = string(result.Classification.Category)
		view.Intent = result.Classification.Category.Intent()
	}

	var fields map[string]any
	if p := result.ProcessingResult; p != nil {
		if p.Summary != "" {
			view.Summary = p.Summary
		}
		fields = p.ExtractedFields
	}
	view.Insights = asList(firstField(fields, "main_points", "main_point"))
	view.Actions = asList(firstField(fields, "action_items", "actions"))
	view.Questions = asList(firstField(fields, "main_questions", "questions"))
	view.Themes = asList(firstField(fields, "themes"))
	if len(view.Insights) == 0 {
		view.Insights = []string{view.Summary}
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// firstField returns the first of keys holding a non-empty value.
func firstField(fields map[string]any, keys ...string) any {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

// asList turns a list into display strings and a single string into a one
// item list. Any other shape yields nothing.
func asList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, displayString(item))
		}
		return items
	}
	return nil
}

func displayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
