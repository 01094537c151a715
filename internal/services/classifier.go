package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/normalize"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
	"github.com/Lllllllleong/docsupervisor/internal/schemas"
)

// Classifier assigns a taxonomy category to document text with one model call.
type Classifier struct {
	model   ModelInvoker
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewClassifier creates a Classifier instance.
func NewClassifier(model ModelInvoker, metrics *observability.Metrics) *Classifier {
	return &Classifier{
		model:   model,
		metrics: metrics,
		log:     logger.WithComponent("classifier"),
	}
}

// Classify returns the category and confidence for text, plus warnings about
// output that had to be coerced. The model is called exactly once.
func (c *Classifier) Classify(ctx context.Context, text string) (*models.Classification, []string, error) {
	c.log.Info().Int("chars", len(text)).Msg("Running classification")

	resp, err := c.model.Invoke(ctx, BuildClassificationPrompt(text))
	if err != nil {
		c.log.Error().Err(err).Msg("Call to model for classification failed")
		return nil, nil, fmt.Errorf("failed to classify document: %w", err)
	}

	rawText, adapter := normalize.Detect(resp)
	c.log.Debug().Str("adapter", adapter).Str("rawText", rawText).Msg("Classification raw text")

	obj, err := normalize.ExtractJSON(rawText, ClassificationContext)
	if err != nil {
		c.countParseFailure(err)
		c.log.Error().Err(err).Msg("Classification output is not JSON")
		return nil, nil, err
	}

	classification, warnings := c.toClassification(obj)
	c.log.Info().
		Str("category", string(classification.Category)).
		Float64("confidence", classification.Confidence).
		Msg("Parsed classification JSON")
	return classification, warnings, nil
}

func (c *Classifier) toClassification(obj map[string]any) (*models.Classification, []string) {
	warnings := schemas.Classification.Violations(obj)

	label := stringValue(obj["category"])
	category, ok := models.ParseCategory(label)
	result := &models.Classification{Category: category}
	if !ok {
		result.RawCategory = label
		warnings = append(warnings, fmt.Sprintf("classification: category %q is outside the taxonomy, using %s", label, models.CategoryOther))
		if c.metrics != nil {
			c.metrics.CategoryFallbacks.Inc()
		}
		c.log.Warn().Str("rawCategory", label).Msg("Unknown category, falling back to OTHER")
	}

	confidence, ok := floatValue(obj["confidence"])
	if !ok {
		warnings = append(warnings, fmt.Sprintf("classification: confidence %v is not a number, using 0", obj["confidence"]))
	}
	result.Confidence = clamp01(confidence)

	return result, warnings
}

func (c *Classifier) countParseFailure(err error) {
	if c.metrics != nil && errors.Is(err, normalize.ErrUnparseable) {
		c.metrics.ParseFailures.WithLabelValues(ClassificationContext).Inc()
	}
}
