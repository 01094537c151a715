package services

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
)

// ocrExtensions route to the OCR path; everything else is read directly.
var ocrExtensions = map[string]bool{
	"pdf":  true,
	"tif":  true,
	"tiff": true,
	"png":  true,
	"jpg":  true,
	"jpeg": true,
}

// ExtractorConfig holds configuration for the text extractor.
type ExtractorConfig struct {
	TextOutputPrefix string
	PollInterval     time.Duration
	MaxPolls         int
}

// ExtractedText is the output of the text extractor.
type ExtractedText struct {
	Text      string
	Location  models.Location
	PageCount int

	// SourceGeneration is the storage generation of the source that was read.
	SourceGeneration int64
}

// TextExtractor produces plain text for a source document and keeps a copy
// of it in the blob store.
type TextExtractor struct {
	store   BlobStore
	ocr     OCRClient
	config  ExtractorConfig
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewTextExtractor creates a TextExtractor instance.
func NewTextExtractor(store BlobStore, ocr OCRClient, config ExtractorConfig, metrics *observability.Metrics) *TextExtractor {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxPolls <= 0 {
		config.MaxPolls = 900
	}
	return &TextExtractor{
		store:   store,
		ocr:     ocr,
		config:  config,
		metrics: metrics,
		log:     logger.WithComponent("text-extractor"),
	}
}

// UsesOCR reports whether source is routed to the OCR path.
func UsesOCR(source models.Location) bool {
	return ocrExtensions[source.Ext()]
}

// Extract returns the text of source and where its copy was stored.
func (e *TextExtractor) Extract(ctx context.Context, source models.Location) (*ExtractedText, error) {
	logCtx := e.log.With().Str("source", source.URI()).Logger()

	var (
		text       string
		pageCount  int
		generation int64
		err        error
	)
	if UsesOCR(source) {
		// OCR backends read the object themselves; only its version is needed here.
		if generation, err = e.store.Generation(ctx, source); err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", source.URI(), err)
		}
	}
	switch {
	case source.Ext() == "pdf":
		logCtx.Info().Msg("OCR-eligible PDF detected, starting asynchronous text detection")
		text, pageCount, err = e.detectAsync(ctx, source, logCtx)
		if err == nil && pageCount == 0 {
			pageCount, err = e.inspectPDF(ctx, source, logCtx)
		}
	case UsesOCR(source):
		logCtx.Info().Msg("OCR-eligible image detected, running synchronous text detection")
		text, err = e.detectSync(ctx, source)
		pageCount = 1
	default:
		logCtx.Info().Msg("Reading non-OCR object directly")
		text, generation, err = e.readDirect(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	textLoc := models.Location{
		Bucket: source.Bucket,
		Key:    e.config.TextOutputPrefix + source.Filename() + ".txt",
	}
	if err := e.store.Put(ctx, textLoc, []byte(text), "text/plain; charset=utf-8"); err != nil {
		logCtx.Error().Err(err).Str("textLocation", textLoc.URI()).Msg("Failed to store extracted text")
		return nil, fmt.Errorf("failed to store extracted text: %w", err)
	}
	logCtx.Info().Str("textLocation", textLoc.URI()).Int("chars", len(text)).Msg("Extracted text stored")

	return &ExtractedText{Text: text, Location: textLoc, PageCount: pageCount, SourceGeneration: generation}, nil
}

func (e *TextExtractor) readDirect(ctx context.Context, source models.Location) (string, int64, error) {
	obj, err := e.store.Get(ctx, source)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", source.URI(), err)
	}
	return DecodeText(source, obj), obj.Generation, nil
}

// DecodeText turns raw object bytes into a string without ever failing.
// Textual content is decoded as UTF-8 with an ISO-8859-1 fallback; other
// content is decoded as UTF-8 with invalid sequences dropped.
func DecodeText(source models.Location, obj *models.Object) string {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension("." + source.Ext())
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ext := source.Ext()
	if strings.HasPrefix(contentType, "text/") || ext == "html" || ext == "htm" {
		if utf8.Valid(obj.Data) {
			return string(obj.Data)
		}
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(obj.Data); err == nil {
			return string(decoded)
		}
	}
	return strings.ToValidUTF8(string(obj.Data), "")
}

func (e *TextExtractor) detectSync(ctx context.Context, source models.Location) (string, error) {
	blocks, err := e.ocr.DetectSync(ctx, source)
	if err != nil {
		return "", fmt.Errorf("text detection failed for %s: %w", source.URI(), err)
	}
	return joinLines(appendLines(nil, blocks)), nil
}

// detectAsync runs an OCR job and returns its text and the page count the
// backend reported. Every result page must be SUCCEEDED, not only the first.
func (e *TextExtractor) detectAsync(ctx context.Context, source models.Location, logCtx zerolog.Logger) (string, int, error) {
	jobID, err := e.ocr.StartAsyncDetection(ctx, source)
	if err != nil {
		return "", 0, fmt.Errorf("failed to start text detection for %s: %w", source.URI(), err)
	}
	logCtx = logCtx.With().Str("jobId", jobID).Logger()
	logCtx.Info().Msg("Text detection job started")

	page, err := e.waitForJob(ctx, jobID, logCtx)
	if err != nil {
		return "", 0, err
	}

	var (
		lines     []string
		pageCount int
	)
	for pages := 1; ; pages++ {
		if page.Status != models.JobSucceeded {
			jobErr := &OCRJobError{JobID: jobID, Status: page.Status, Message: page.Message}
			logCtx.Error().Err(jobErr).Int("resultPage", pages).Msg("Text detection job failed")
			return "", 0, jobErr
		}
		lines = appendLines(lines, page.Blocks)
		pageCount += page.PageCount
		if page.NextToken == "" {
			break
		}
		if page, err = e.ocr.GetDetectionResults(ctx, jobID, page.NextToken); err != nil {
			return "", 0, fmt.Errorf("failed to read page %d of OCR job %s: %w", pages+1, jobID, err)
		}
	}
	logCtx.Info().Int("lines", len(lines)).Int("pageCount", pageCount).Msg("Text detection job complete")
	return joinLines(lines), pageCount, nil
}

// waitForJob polls until the job is terminal, the poll limit is reached or
// ctx is done. It returns the first page of the terminal response.
func (e *TextExtractor) waitForJob(ctx context.Context, jobID string, logCtx zerolog.Logger) (*models.DetectionPage, error) {
	for attempt := 1; ; attempt++ {
		page, err := e.ocr.GetDetectionResults(ctx, jobID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to get status of OCR job %s: %w", jobID, err)
		}
		if e.metrics != nil {
			e.metrics.OCRPolls.Inc()
		}
		if page.Status.Terminal() {
			logCtx.Info().Str("status", string(page.Status)).Int("polls", attempt).Msg("Text detection job reached terminal status")
			return page, nil
		}
		if attempt >= e.config.MaxPolls {
			return nil, fmt.Errorf("%w: job %s still %s after %d polls", ErrOCRPollLimit, jobID, page.Status, attempt)
		}
		logCtx.Debug().Str("status", string(page.Status)).Int("attempt", attempt).Msg("Waiting for text detection job")

		timer := time.NewTimer(e.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func appendLines(lines []string, blocks []models.Block) []string {
	for _, b := range blocks {
		if b.Type == models.BlockLine && b.Text != "" {
			lines = append(lines, b.Text)
		}
	}
	return lines
}

func joinLines(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
