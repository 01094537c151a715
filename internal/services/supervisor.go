package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
)

// Stage names one pipeline transition.
type Stage string

const (
	StageTextExtraction Stage = "text_extraction"
	StageClassification Stage = "classification"
	StageProcessing     Stage = "processing"
)

// StageStatus maps a completed stage to the status recorded for it.
var StageStatus = map[Stage]string{
	StageTextExtraction: models.StatusTextExtracted,
	StageClassification: models.StatusClassified,
	StageProcessing:     models.StatusProcessed,
}

// StageObserver is called after every stage that actually ran. An error
// stops the pipeline.
type StageObserver func(ctx context.Context, stage Stage, rec *models.WorkflowRecord) error

var errInconsistentRecord = errors.New("workflow record has a later stage without an earlier one")

// Supervisor runs the stages that are still missing from a workflow record.
type Supervisor struct {
	extractor  *TextExtractor
	classifier *Classifier
	processor  *Processor
	observer   StageObserver
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// NewSupervisor creates a Supervisor. observer may be nil.
func NewSupervisor(extractor *TextExtractor, classifier *Classifier, processor *Processor, observer StageObserver, metrics *observability.Metrics) *Supervisor {
	return &Supervisor{
		extractor:  extractor,
		classifier: classifier,
		processor:  processor,
		observer:   observer,
		metrics:    metrics,
		log:        logger.WithComponent("supervisor"),
	}
}

// Run fills the text, classification and extraction of rec in that order.
// A stage whose field is already set is skipped, so running twice on the
// same record does no extra work.
func (s *Supervisor) Run(ctx context.Context, rec *models.WorkflowRecord) error {
	logCtx := s.log.With().Str("source", rec.Source.URI()).Logger()
	if !rec.Consistent() {
		return errInconsistentRecord
	}

	if err := s.step(ctx, logCtx, StageTextExtraction, rec, rec.HasText(), func() error {
		extracted, err := s.extractor.Extract(ctx, rec.Source)
		if err != nil {
			return err
		}
		text, loc := extracted.Text, extracted.Location
		rec.Text = &text
		rec.TextLocation = &loc
		rec.PageCount = extracted.PageCount
		rec.SourceGeneration = extracted.SourceGeneration
		return nil
	}); err != nil {
		return err
	}

	if err := s.step(ctx, logCtx, StageClassification, rec, rec.HasClassification(), func() error {
		classification, warnings, err := s.classifier.Classify(ctx, *rec.Text)
		if err != nil {
			return err
		}
		rec.Classification = classification
		rec.Warnings = append(rec.Warnings, warnings...)
		return nil
	}); err != nil {
		return err
	}

	return s.step(ctx, logCtx, StageProcessing, rec, rec.HasExtraction(), func() error {
		result, warnings, err := s.processor.Process(ctx, *rec.Text, rec.Classification)
		if err != nil {
			return err
		}
		rec.ExtractionResult = result
		rec.Warnings = append(rec.Warnings, warnings...)
		return nil
	})
}

func (s *Supervisor) step(ctx context.Context, logCtx zerolog.Logger, stage Stage, rec *models.WorkflowRecord, done bool, run func() error) error {
	if done {
		logCtx.Info().Str("stage", string(stage)).Msg("Stage already complete, skipping")
		if s.metrics != nil {
			s.metrics.StagesSkipped.WithLabelValues(string(stage)).Inc()
		}
		return nil
	}

	start := time.Now()
	logCtx.Info().Str("stage", string(stage)).Msg("Running stage")
	err := run()
	if s.metrics != nil {
		s.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logCtx.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed")
		return err
	}

	if s.observer != nil {
		return s.observer(ctx, stage, rec)
	}
	return nil
}
