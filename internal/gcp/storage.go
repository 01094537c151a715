package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// GCSStore reads and writes documents in Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCSStore with default credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Client exposes the underlying client to the OCR adapters that read result shards.
func (s *GCSStore) Client() *storage.Client {
	return s.client
}

// Close closes the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Get reads the whole object. A missing object yields an error wrapping
// models.ErrNotFound.
func (s *GCSStore) Get(ctx context.Context, loc models.Location) (*models.Object, error) {
	reader, err := s.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, mapStorageError(loc, "open", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc.URI(), err)
	}
	return &models.Object{
		Data:        data,
		ContentType: reader.Attrs.ContentType,
		Generation:  reader.Attrs.Generation,
	}, nil
}

// Generation reads the object's metadata only.
func (s *GCSStore) Generation(ctx context.Context, loc models.Location) (int64, error) {
	attrs, err := s.client.Bucket(loc.Bucket).Object(loc.Key).Attrs(ctx)
	if err != nil {
		return 0, mapStorageError(loc, "stat", err)
	}
	return attrs.Generation, nil
}

// Put overwrites the object unconditionally.
func (s *GCSStore) Put(ctx context.Context, loc models.Location, data []byte, contentType string) error {
	writer := s.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
	_, err := s.write(writer, loc, data, contentType)
	return err
}

// PutIfGeneration writes the object only if its generation still matches.
// Generation 0 requires that the object does not exist yet.
func (s *GCSStore) PutIfGeneration(ctx context.Context, loc models.Location, data []byte, contentType string, generation int64) (int64, error) {
	cond := storage.Conditions{DoesNotExist: true}
	if generation != 0 {
		cond = storage.Conditions{GenerationMatch: generation}
	}
	writer := s.client.Bucket(loc.Bucket).Object(loc.Key).If(cond).NewWriter(ctx)
	return s.write(writer, loc, data, contentType)
}

func (s *GCSStore) write(writer *storage.Writer, loc models.Location, data []byte, contentType string) (int64, error) {
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return 0, mapStorageError(loc, "write", err)
	}
	if err := writer.Close(); err != nil {
		return 0, mapStorageError(loc, "finalize", err)
	}
	return writer.Attrs().Generation, nil
}

// mapStorageError wraps err and, where it applies, the storage sentinel the
// pipeline branches on.
func mapStorageError(loc models.Location, op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to %s %s: %w: %w", op, loc.URI(), models.ErrNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("failed to %s %s: %w: %w", op, loc.URI(), models.ErrPreconditionFailed, err)
		case http.StatusNotFound:
			return fmt.Errorf("failed to %s %s: %w: %w", op, loc.URI(), models.ErrNotFound, err)
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, loc.URI(), err)
}
