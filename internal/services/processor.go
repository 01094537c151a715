package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/normalize"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
	"github.com/Lllllllleong/docsupervisor/internal/schemas"
)

// Processor extracts category specific fields and a summary from document text.
type Processor struct {
	model   ModelInvoker
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewProcessor creates a Processor instance.
func NewProcessor(model ModelInvoker, metrics *observability.Metrics) *Processor {
	return &Processor{
		model:   model,
		metrics: metrics,
		log:     logger.WithComponent("processor"),
	}
}

// Process returns the structured extraction for text. The model is called
// exactly once and extracted_fields is not checked against the category.
func (p *Processor) Process(ctx context.Context, text string, classification *models.Classification) (*models.ExtractionResult, []string, error) {
	logCtx := p.log.With().Str("category", string(classification.Category)).Logger()
	logCtx.Info().Msg("Running processing")

	prompt, err := BuildProcessingPrompt(text, classification)
	if err != nil {
		return nil, nil, err
	}

	resp, err := p.model.Invoke(ctx, prompt)
	if err != nil {
		logCtx.Error().Err(err).Msg("Call to model for processing failed")
		return nil, nil, fmt.Errorf("failed to process document: %w", err)
	}

	rawText, adapter := normalize.Detect(resp)
	logCtx.Debug().Str("adapter", adapter).Str("rawText", rawText).Msg("Processing raw text")

	obj, err := normalize.ExtractJSON(rawText, ProcessingContext)
	if err != nil {
		if p.metrics != nil && errors.Is(err, normalize.ErrUnparseable) {
			p.metrics.ParseFailures.WithLabelValues(ProcessingContext).Inc()
		}
		logCtx.Error().Err(err).Msg("Processing output is not JSON")
		return nil, nil, err
	}

	result, warnings := toExtractionResult(obj, classification)
	logCtx.Info().Int("fields", len(result.ExtractedFields)).Msg("Parsed processing JSON successfully")
	return result, warnings, nil
}

func toExtractionResult(obj map[string]any, classification *models.Classification) (*models.ExtractionResult, []string) {
	warnings := schemas.Extraction.Violations(obj)

	result := &models.ExtractionResult{
		Category: models.Category(strings.TrimSpace(stringValue(obj["category"]))),
		Summary:  stringValue(obj["summary"]),
	}
	if result.Category == "" {
		result.Category = classification.Category
	} else if result.Category != classification.Category {
		warnings = append(warnings, fmt.Sprintf("processing: category %q differs from classification %q", result.Category, classification.Category))
	}

	var ok bool
	if result.KeyEntities, ok = objectValue(obj["key_entities"]); !ok {
		warnings = append(warnings, "processing: key_entities is not an object")
	}
	if result.ExtractedFields, ok = objectValue(obj["extracted_fields"]); !ok {
		warnings = append(warnings, "processing: extracted_fields is not an object")
	}
	return result, warnings
}
