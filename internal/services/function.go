package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/config"
	"github.com/Lllllllleong/docsupervisor/internal/gcp"
	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
)

// DocumentConfig holds configuration for the document function.
type DocumentConfig struct {
	Extractor            ExtractorConfig
	ResultOutputPrefix   string
	ResumeFromCheckpoint bool
	// IgnoredPrefixes are key prefixes written by the pipeline itself.
	// Storage events for them are dropped so outputs do not retrigger it.
	IgnoredPrefixes []string
}

// Dependencies are the collaborators of the document function. Checkpoints,
// Tracker and Trigger are optional.
type Dependencies struct {
	Store       BlobStore
	OCR         OCRClient
	Model       ModelInvoker
	Checkpoints CheckpointStore
	Tracker     StatusTracker
	Trigger     ReportTrigger
	Metrics     *observability.Metrics
}

// DocumentFunction runs one document through the pipeline per invocation.
type DocumentFunction struct {
	extractor   *TextExtractor
	classifier  *Classifier
	processor   *Processor
	publisher   *Publisher
	checkpoints CheckpointStore
	tracker     StatusTracker
	metrics     *observability.Metrics
	validate    *validator.Validate
	config      DocumentConfig
	closers     []func() error
	log         zerolog.Logger
}

// NewDocumentFunction builds the function from cfg, creating the Google
// Cloud clients for the configured providers.
func NewDocumentFunction(ctx context.Context, cfg *config.Config) (*DocumentFunction, error) {
	var closers []func() error
	fail := func(err error) (*DocumentFunction, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	gcs, err := gcp.NewGCSStore(ctx)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, gcs.Close)
	deps := Dependencies{Store: gcs, Metrics: observability.Default}

	switch cfg.OCRProvider {
	case config.OCRProviderDocumentAI:
		ocr, err := gcp.NewDocumentAIOCR(ctx, gcs, gcp.DocumentAIConfig{
			ProjectID:    cfg.ProjectID,
			Location:     cfg.DocumentAILocation,
			ProcessorID:  cfg.DocumentAIProcessorID,
			OutputBucket: cfg.OCROutputBucket,
			OutputPrefix: cfg.OCROutputPrefix,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, ocr.Close)
		deps.OCR = ocr
	default:
		ocr, err := gcp.NewVisionOCR(ctx, gcs, cfg.OCROutputBucket, cfg.OCROutputPrefix)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, ocr.Close)
		deps.OCR = ocr
	}

	switch cfg.ModelProvider {
	case config.ModelProviderGemini:
		model, err := gcp.NewGeminiInvoker(ctx, cfg.GeminiAPIKey, cfg.ModelName)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, model.Close)
		deps.Model = model
	default:
		model, err := gcp.NewVertexInvoker(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.ModelName)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, model.Close)
		deps.Model = model
	}

	if cfg.ResumeFromCheckpoint {
		deps.Checkpoints = NewBlobCheckpointStore(gcs, cfg.CheckpointPrefix)
	}
	if cfg.FirestoreCollection != "" {
		tracker, err := gcp.NewFirestoreTracker(ctx, cfg.ProjectID, cfg.FirestoreCollection)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, tracker.Close)
		deps.Tracker = tracker
	}
	if cfg.ReportWorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.ReportWorkflowID)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, trigger.Close)
		deps.Trigger = trigger
	}

	f := NewDocumentFunctionWithDependencies(deps, DocumentConfig{
		Extractor: ExtractorConfig{
			TextOutputPrefix: cfg.TextOutputPrefix,
			PollInterval:     cfg.OCRPollInterval,
			MaxPolls:         cfg.OCRMaxPolls,
		},
		ResultOutputPrefix:   cfg.ResultOutputPrefix,
		ResumeFromCheckpoint: cfg.ResumeFromCheckpoint,
		IgnoredPrefixes: []string{
			cfg.TextOutputPrefix,
			cfg.ResultOutputPrefix,
			cfg.CheckpointPrefix,
			cfg.OCROutputPrefix,
		},
	})
	f.closers = closers
	f.log.Info().
		Str("modelProvider", cfg.ModelProvider).
		Str("ocrProvider", cfg.OCRProvider).
		Bool("resume", cfg.ResumeFromCheckpoint).
		Msg("Document function initialized")
	return f, nil
}

// NewDocumentFunctionWithDependencies builds the function around existing collaborators.
func NewDocumentFunctionWithDependencies(deps Dependencies, cfg DocumentConfig) *DocumentFunction {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = noopTracker{}
	}
	checkpoints := deps.Checkpoints
	if !cfg.ResumeFromCheckpoint {
		checkpoints = nil
	}
	return &DocumentFunction{
		extractor:   NewTextExtractor(deps.Store, deps.OCR, cfg.Extractor, deps.Metrics),
		classifier:  NewClassifier(deps.Model, deps.Metrics),
		processor:   NewProcessor(deps.Model, deps.Metrics),
		publisher:   NewPublisher(deps.Store, deps.Trigger, cfg.ResultOutputPrefix),
		checkpoints: checkpoints,
		tracker:     tracker,
		metrics:     deps.Metrics,
		validate:    validator.New(),
		config:      cfg,
		log:         logger.WithComponent("document-function"),
	}
}

// Close releases the clients created by NewDocumentFunction.
func (f *DocumentFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Process runs the pipeline for one document and publishes its result.
// A request without bucket or key fails with ErrInvalidInput before any
// storage, OCR or model call.
func (f *DocumentFunction) Process(ctx context.Context, req models.ProcessDocumentRequest) (*models.ProcessDocumentResponse, error) {
	if err := f.validate.Struct(req); err != nil {
		f.count("input_error")
		f.log.Warn().Err(err).Msg("Rejected invocation payload")
		return nil, fmt.Errorf("%w: payload must contain 'bucket' and 'key', e.g. {\"bucket\": \"doc-intake\", \"key\": \"intake/QuestionDoc.html\"}: %v", ErrInvalidInput, err)
	}

	invocationID := uuid.NewString()
	source := req.Location()
	logCtx := f.log.With().
		Str("invocationId", invocationID).
		Str("bucket", source.Bucket).
		Str("key", source.Key).
		Logger()
	logCtx.Info().Msg("Processing document")

	rec, err := f.startRecord(ctx, source, logCtx)
	if err != nil {
		f.count("failure")
		return nil, err
	}
	if err := f.tracker.Start(ctx, invocationID, source); err != nil {
		logCtx.Warn().Err(err).Msg("Failed to record invocation start")
	}

	supervisor := NewSupervisor(f.extractor, f.classifier, f.processor, f.observer(logCtx), f.metrics)
	if err := supervisor.Run(ctx, rec); err != nil {
		return nil, f.fail(ctx, source, logCtx, err)
	}

	result := rec.Result()
	if err := f.publisher.Publish(ctx, invocationID, source, result); err != nil {
		return nil, f.fail(ctx, source, logCtx, err)
	}
	if err := f.tracker.Complete(ctx, source, result); err != nil {
		logCtx.Warn().Err(err).Msg("Failed to record completion")
	}

	f.count("success")
	logCtx.Info().
		Str("category", string(rec.Classification.Category)).
		Int("warnings", len(rec.Warnings)).
		Msg("Document processed")
	return result, nil
}

// ProcessEvent handles a storage object-finalized event. Objects written by
// the pipeline itself are skipped.
func (f *DocumentFunction) ProcessEvent(ctx context.Context, e models.GCSEvent) error {
	if f.Ignored(e.Name) {
		f.log.Info().Str("bucket", e.Bucket).Str("key", e.Name).Msg("Skipping pipeline output")
		return nil
	}
	_, err := f.Process(ctx, models.ProcessDocumentRequest{Bucket: e.Bucket, Key: e.Name})
	return err
}

// Ignored reports whether key lies under one of the pipeline's own output prefixes.
func (f *DocumentFunction) Ignored(key string) bool {
	for _, prefix := range f.config.IgnoredPrefixes {
		if prefix != "" && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (f *DocumentFunction) startRecord(ctx context.Context, source models.Location, logCtx zerolog.Logger) (*models.WorkflowRecord, error) {
	if f.checkpoints == nil {
		return models.NewWorkflowRecord(source), nil
	}
	rec, err := f.checkpoints.Load(ctx, source)
	if err != nil {
		logCtx.Error().Err(err).Msg("Failed to load checkpoint")
		return nil, err
	}
	if rec == nil {
		return models.NewWorkflowRecord(source), nil
	}
	logCtx.Info().
		Bool("hasText", rec.HasText()).
		Bool("hasClassification", rec.HasClassification()).
		Bool("hasExtraction", rec.HasExtraction()).
		Msg("Resuming from checkpoint")
	return rec, nil
}

func (f *DocumentFunction) observer(logCtx zerolog.Logger) StageObserver {
	return func(ctx context.Context, stage Stage, rec *models.WorkflowRecord) error {
		if f.checkpoints != nil {
			if err := f.checkpoints.Save(ctx, rec); err != nil {
				logCtx.Error().Err(err).Str("stage", string(stage)).Msg("Failed to save checkpoint")
				return err
			}
		}
		if err := f.tracker.Update(ctx, rec.Source, StageStatus[stage], rec); err != nil {
			logCtx.Warn().Err(err).Str("stage", string(stage)).Msg("Failed to record stage status")
		}
		return nil
	}
}

func (f *DocumentFunction) fail(ctx context.Context, source models.Location, logCtx zerolog.Logger, err error) error {
	f.count("failure")
	logCtx.Error().Err(err).Msg("Document processing failed")
	if trackErr := f.tracker.Fail(ctx, source, err); trackErr != nil {
		logCtx.Error().Err(trackErr).Msg("CRITICAL: failed to record failure status")
	}
	return err
}

func (f *DocumentFunction) count(outcome string) {
	if f.metrics != nil {
		f.metrics.Invocations.WithLabelValues(outcome).Inc()
	}
}
