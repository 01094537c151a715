package services

import (
	"context"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// BlobStore reads and writes objects in the blob store.
type BlobStore interface {
	Get(ctx context.Context, loc models.Location) (*models.Object, error)
	Put(ctx context.Context, loc models.Location, data []byte, contentType string) error
	// Generation returns the storage generation of the object without
	// reading it.
	Generation(ctx context.Context, loc models.Location) (int64, error)
}

// OCRClient detects text in scanned documents and images.
type OCRClient interface {
	// StartAsyncDetection submits a text detection job for a multi-page document.
	StartAsyncDetection(ctx context.Context, loc models.Location) (string, error)
	// GetDetectionResults reports the job status and, once the job is
	// terminal, one page of detected blocks. An empty nextToken asks for the
	// first page.
	GetDetectionResults(ctx context.Context, jobID, nextToken string) (*models.DetectionPage, error)
	// DetectSync detects text in a single image.
	DetectSync(ctx context.Context, loc models.Location) ([]models.Block, error)
}

// ModelInvoker sends one prompt to a language model. The response shape
// depends on the backend and is read through the normalize package.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string) (any, error)
}

// CheckpointStore persists workflow records between invocations.
type CheckpointStore interface {
	// Load returns the stored record for source, or nil when none exists.
	Load(ctx context.Context, source models.Location) (*models.WorkflowRecord, error)
	// Save stores rec, failing with ErrCheckpointConflict when another
	// writer saved a newer revision.
	Save(ctx context.Context, rec *models.WorkflowRecord) error
}

// StatusTracker records pipeline progress for operators. It is written to
// but never read by the pipeline.
type StatusTracker interface {
	Start(ctx context.Context, invocationID string, source models.Location) error
	Update(ctx context.Context, source models.Location, status string, rec *models.WorkflowRecord) error
	Complete(ctx context.Context, source models.Location, result *models.ProcessDocumentResponse) error
	Fail(ctx context.Context, source models.Location, cause error) error
}

// ReportTrigger hands a finished result to a downstream consumer.
type ReportTrigger interface {
	Trigger(ctx context.Context, arg *models.ReportWorkflowArgument) error
}

type noopTracker struct{}

func (noopTracker) Start(context.Context, string, models.Location) error { return nil }
func (noopTracker) Update(context.Context, models.Location, string, *models.WorkflowRecord) error {
	return nil
}
func (noopTracker) Complete(context.Context, models.Location, *models.ProcessDocumentResponse) error {
	return nil
}
func (noopTracker) Fail(context.Context, models.Location, error) error { return nil }
