package gcp

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// DocumentAIConfig holds the processor and result location of DocumentAIOCR.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // e.g. "us" or "eu"
	ProcessorID string
	// OutputBucket receives batch results; empty means the source bucket.
	OutputBucket string
	OutputPrefix string
}

// DocumentAIOCR detects document text with a Document AI OCR processor.
type DocumentAIOCR struct {
	client *documentai.DocumentProcessorClient
	gcs    *GCSStore
	config DocumentAIConfig
	jobs   *jobRegistry
}

// NewDocumentAIOCR creates a DocumentAIOCR using the regional endpoint of config.Location.
func NewDocumentAIOCR(ctx context.Context, gcs *GCSStore, config DocumentAIConfig) (*DocumentAIOCR, error) {
	if config.Location == "" {
		config.Location = "us"
	}
	var opts []option.ClientOption
	if config.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client for location %s: %w", config.Location, err)
	}
	return &DocumentAIOCR{client: client, gcs: gcs, config: config, jobs: newJobRegistry()}, nil
}

// Close closes the underlying client.
func (d *DocumentAIOCR) Close() error {
	return d.client.Close()
}

func (d *DocumentAIOCR) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// StartAsyncDetection starts a batch process of one document.
func (d *DocumentAIOCR) StartAsyncDetection(ctx context.Context, loc models.Location) (string, error) {
	mimeType, err := ocrMimeType(loc)
	if err != nil {
		return "", err
	}
	output := outputLocation(d.config.OutputBucket, d.config.OutputPrefix, loc)

	req := &documentaipb.BatchProcessRequest{
		Name: d.processorName(),
		InputDocuments: &documentaipb.BatchDocumentsInputConfig{
			Source: &documentaipb.BatchDocumentsInputConfig_GcsDocuments{
				GcsDocuments: &documentaipb.GcsDocuments{
					Documents: []*documentaipb.GcsDocument{{GcsUri: loc.URI(), MimeType: mimeType}},
				},
			},
		},
		DocumentOutputConfig: &documentaipb.DocumentOutputConfig{
			Destination: &documentaipb.DocumentOutputConfig_GcsOutputConfig_{
				GcsOutputConfig: &documentaipb.DocumentOutputConfig_GcsOutputConfig{GcsUri: output.URI()},
			},
		},
	}
	op, err := d.client.BatchProcessDocuments(ctx, req)
	if err != nil {
		return "", fmt.Errorf("documentai BatchProcessDocuments: %w", err)
	}
	d.jobs.add(op.Name(), output)
	return op.Name(), nil
}

// GetDetectionResults maps the batch state onto the job status. Each page
// of a finished job holds the lines of one result shard.
func (d *DocumentAIOCR) GetDetectionResults(ctx context.Context, jobID, nextToken string) (*models.DetectionPage, error) {
	if nextToken == "" {
		op := d.client.BatchProcessDocumentsOperation(jobID)
		if _, err := op.Poll(ctx); err != nil {
			if op.Done() {
				d.jobs.release(jobID)
				return &models.DetectionPage{Status: models.JobFailed, Message: err.Error()}, nil
			}
			return nil, fmt.Errorf("documentai operation poll: %w", err)
		}
		if !op.Done() {
			return &models.DetectionPage{Status: models.JobRunning}, nil
		}
		meta, err := op.Metadata()
		if err != nil {
			return nil, fmt.Errorf("documentai operation metadata: %w", err)
		}
		if status := batchStatus(meta); status != models.JobSucceeded {
			if status != models.JobRunning {
				d.jobs.release(jobID)
			}
			return &models.DetectionPage{Status: status, Message: meta.GetStateMessage()}, nil
		}
	}

	data, next, err := shardPage(ctx, d.gcs, d.jobs, jobID, nextToken)
	if err != nil {
		return nil, err
	}
	page := &models.DetectionPage{Status: models.JobSucceeded, NextToken: next}
	if data == nil {
		return page, nil
	}

	var doc documentaipb.Document
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode Document AI result shard: %w", err)
	}
	page.Blocks = documentLines(&doc)
	page.PageCount = len(doc.GetPages())
	return page, nil
}

// batchStatus maps batch metadata onto a job status. A batch whose single
// document did not process cleanly counts as a partial success.
func batchStatus(meta *documentaipb.BatchProcessMetadata) models.JobStatus {
	switch meta.GetState() {
	case documentaipb.BatchProcessMetadata_SUCCEEDED:
		for _, s := range meta.GetIndividualProcessStatuses() {
			if s.GetStatus().GetCode() != 0 {
				return models.JobPartialSuccess
			}
		}
		return models.JobSucceeded
	case documentaipb.BatchProcessMetadata_FAILED, documentaipb.BatchProcessMetadata_CANCELLED:
		return models.JobFailed
	default:
		return models.JobRunning
	}
}

// DetectSync processes a single image online.
func (d *DocumentAIOCR) DetectSync(ctx context.Context, loc models.Location) ([]models.Block, error) {
	mimeType, err := ocrMimeType(loc)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{GcsUri: loc.URI(), MimeType: mimeType},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("documentai returned no document for %s", loc.URI())
	}
	return documentLines(resp.GetDocument()), nil
}

// documentLines returns the LINE blocks of every page in reading order. Line
// layouts index into the document text by code point.
func documentLines(doc *documentaipb.Document) []models.Block {
	text := []rune(doc.GetText())
	var blocks []models.Block
	for _, p := range doc.GetPages() {
		for _, line := range p.GetLines() {
			var s []rune
			for _, seg := range line.GetLayout().GetTextAnchor().GetTextSegments() {
				start, end := seg.GetStartIndex(), seg.GetEndIndex()
				if start < 0 || end > int64(len(text)) || start >= end {
					continue
				}
				s = append(s, text[start:end]...)
			}
			blocks = append(blocks, textBlocks(string(s))...)
		}
	}
	if len(blocks) == 0 && len(text) > 0 {
		return textBlocks(string(text))
	}
	return blocks
}
