package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreTracker keeps one status document per source document.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreTracker creates a tracker writing to collection.
func NewFirestoreTracker(ctx context.Context, projectID, collection string) (*FirestoreTracker, error) {
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreTracker{client: client, collection: collection, now: time.Now}, nil
}

// Close closes the underlying client.
func (t *FirestoreTracker) Close() error {
	return t.client.Close()
}

// StatusDocumentID derives a stable document ID from the source URI, which
// may contain characters Firestore does not allow in IDs.
func StatusDocumentID(source models.Location) string {
	sum := sha256.Sum256([]byte(source.URI()))
	return hex.EncodeToString(sum[:])
}

func (t *FirestoreTracker) doc(source models.Location) *firestore.DocumentRef {
	return t.client.Collection(t.collection).Doc(StatusDocumentID(source))
}

// Start resets the status document to RECEIVED for a new invocation.
func (t *FirestoreTracker) Start(ctx context.Context, invocationID string, source models.Location) error {
	now := t.now()
	status := models.DocumentStatus{
		SourceURI:    source.URI(),
		Filename:     source.Filename(),
		Status:       models.StatusReceived,
		InvocationID: invocationID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := t.doc(source).Set(ctx, status); err != nil {
		return fmt.Errorf("failed to create status document: %w", err)
	}
	return nil
}

// Update records the status reached after a pipeline stage.
func (t *FirestoreTracker) Update(ctx context.Context, source models.Location, status string, rec *models.WorkflowRecord) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: t.now()},
	}
	if rec.PageCount > 0 {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: rec.PageCount})
	}
	if rec.Classification != nil {
		updates = append(updates, firestore.Update{Path: "category", Value: string(rec.Classification.Category)})
	}
	return t.update(ctx, source, updates)
}

// Complete marks the document COMPLETED and records where the result went.
func (t *FirestoreTracker) Complete(ctx context.Context, source models.Location, result *models.ProcessDocumentResponse) error {
	return t.update(ctx, source, []firestore.Update{
		{Path: "status", Value: models.StatusCompleted},
		{Path: "resultUri", Value: result.ResultLocation},
		{Path: "updatedAt", Value: t.now()},
	})
}

// Fail marks the document FAILED with the error text.
func (t *FirestoreTracker) Fail(ctx context.Context, source models.Location, cause error) error {
	return t.update(ctx, source, []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: cause.Error()},
		{Path: "updatedAt", Value: t.now()},
	})
}

func (t *FirestoreTracker) update(ctx context.Context, source models.Location, updates []firestore.Update) error {
	if _, err := t.doc(source).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update status document: %w", err)
	}
	return nil
}
