package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/normalize"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
)

func TestBuildClassificationPrompt(t *testing.T) {
	prompt := BuildClassificationPrompt("DOCUMENT BODY")

	for _, c := range models.Categories {
		assert.Contains(t, prompt, string(c))
	}
	assert.Contains(t, prompt, documentDelimiter+"\nDOCUMENT BODY\n"+documentDelimiter)
	assert.True(t, strings.HasSuffix(prompt, "Now respond with ONLY the JSON object as specified."))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		response     any
		want         models.Classification
		wantWarnings []string
	}{
		{
			name:     "narrated JSON",
			response: memoClassification,
			want:     models.Classification{Category: models.CategorySummaryMemo, Confidence: 0.93},
		},
		{
			name:     "lower case label",
			response: map[string]any{"text": `{"category": " kyc_doc ", "confidence": 0.5}`},
			want:     models.Classification{Category: models.CategoryKYCDoc, Confidence: 0.5},
			wantWarnings: []string{
				"classification: category:",
			},
		},
		{
			name:     "unknown category falls back to OTHER",
			response: `{"category": "TAX_RETURN", "confidence": 0.8}`,
			want:     models.Classification{Category: models.CategoryOther, Confidence: 0.8, RawCategory: "TAX_RETURN"},
			wantWarnings: []string{
				`classification: category "TAX_RETURN" is outside the taxonomy, using OTHER`,
			},
		},
		{
			name:     "confidence as string",
			response: `{"category": "OTHER", "confidence": "0.7"}`,
			want:     models.Classification{Category: models.CategoryOther, Confidence: 0.7},
		},
		{
			name:     "confidence above range is clamped",
			response: `{"category": "DATA_JSON", "confidence": 1.5}`,
			want:     models.Classification{Category: models.CategoryDataJSON, Confidence: 1},
		},
		{
			name:     "missing confidence",
			response: `{"category": "DATA_JSON"}`,
			want:     models.Classification{Category: models.CategoryDataJSON},
			wantWarnings: []string{
				"classification: confidence <nil> is not a number, using 0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{classification: tt.response}

			got, warnings, err := NewClassifier(model, nil).Classify(context.Background(), "some text")
			require.NoError(t, err)

			assert.Equal(t, tt.want, *got)
			assert.Equal(t, 1, model.classifyCalls)
			for _, w := range tt.wantWarnings {
				assertContainsPrefix(t, warnings, w)
			}
		})
	}
}

func assertContainsPrefix(t *testing.T, warnings []string, prefix string) {
	t.Helper()
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return
		}
	}
	t.Errorf("no warning starting with %q in %q", prefix, warnings)
}

func TestClassify_Unparseable(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	model := &stubModel{classification: "I cannot classify this document."}

	_, _, err := NewClassifier(model, metrics).Classify(context.Background(), "text")

	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrUnparseable)
	assert.Contains(t, err.Error(), ClassificationContext)
	assert.Equal(t, 1, model.classifyCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ParseFailures.WithLabelValues(ClassificationContext)))
}

func TestClassify_ModelError(t *testing.T) {
	boom := errors.New("quota exceeded")
	model := &stubModel{err: boom}

	_, _, err := NewClassifier(model, nil).Classify(context.Background(), "text")

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, model.classifyCalls)
}

func TestClassify_CountsCategoryFallback(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	model := &stubModel{classification: `{"category": "INVOICE", "confidence": 0.4}`}

	_, _, err := NewClassifier(model, metrics).Classify(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CategoryFallbacks))
}
