package models

import "time"

// Pipeline status values recorded on the status document.
const (
	StatusReceived      = "RECEIVED"
	StatusTextExtracted = "TEXT_EXTRACTED"
	StatusClassified    = "CLASSIFIED"
	StatusProcessed     = "PROCESSED"
	StatusCompleted     = "COMPLETED"
	StatusFailed        = "FAILED"
)

// DocumentStatus is the audit record for one source document in Firestore.
// It is written alongside the pipeline and never read back to drive it.
type DocumentStatus struct {
	SourceURI    string    `firestore:"sourceUri,omitempty"`
	Filename     string    `firestore:"originalFilename,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	Category     string    `firestore:"category,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	InvocationID string    `firestore:"invocationId,omitempty"` // For traceability
	ResultURI    string    `firestore:"resultUri,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}
