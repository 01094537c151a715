package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/logger"
	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// ConditionalStore is a BlobStore that can guard writes with the object's
// storage generation.
type ConditionalStore interface {
	BlobStore
	// PutIfGeneration writes data only when the stored object is at
	// generation; 0 requires that no object exists. It returns the new
	// generation, or an error wrapping models.ErrPreconditionFailed.
	PutIfGeneration(ctx context.Context, loc models.Location, data []byte, contentType string, generation int64) (int64, error)
}

// BlobCheckpointStore keeps one JSON checkpoint per source document in the
// source bucket, under prefix.
type BlobCheckpointStore struct {
	store  ConditionalStore
	prefix string
	log    zerolog.Logger
}

// NewBlobCheckpointStore creates a BlobCheckpointStore.
func NewBlobCheckpointStore(store ConditionalStore, prefix string) *BlobCheckpointStore {
	return &BlobCheckpointStore{
		store:  store,
		prefix: prefix,
		log:    logger.WithComponent("checkpoints"),
	}
}

func (c *BlobCheckpointStore) location(source models.Location) models.Location {
	return models.Location{Bucket: source.Bucket, Key: c.prefix + source.Filename() + ".json"}
}

// Load implements CheckpointStore. An unreadable checkpoint, one recorded for
// a different source with the same filename, or one recorded for an earlier
// generation of the source yields an empty record that will overwrite it.
func (c *BlobCheckpointStore) Load(ctx context.Context, source models.Location) (*models.WorkflowRecord, error) {
	loc := c.location(source)
	obj, err := c.store.Get(ctx, loc)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", loc.URI(), err)
	}

	var rec models.WorkflowRecord
	if err := json.Unmarshal(obj.Data, &rec); err != nil {
		c.log.Warn().Err(err).Str("checkpoint", loc.URI()).Msg("Ignoring unreadable checkpoint")
		return c.replace(source, obj), nil
	}
	if rec.Source != source || !rec.Consistent() {
		c.log.Warn().Str("checkpoint", loc.URI()).Str("recordedSource", rec.Source.URI()).Msg("Ignoring checkpoint of another source")
		return c.replace(source, obj), nil
	}

	generation, err := c.store.Generation(ctx, source)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to stat %s: %w", source.URI(), err)
	}
	if rec.SourceGeneration != generation {
		c.log.Warn().Str("checkpoint", loc.URI()).
			Int64("recordedGeneration", rec.SourceGeneration).
			Int64("sourceGeneration", generation).
			Msg("Ignoring checkpoint of an earlier upload")
		return c.replace(source, obj), nil
	}
	rec.Revision = obj.Generation
	return &rec, nil
}

func (c *BlobCheckpointStore) replace(source models.Location, obj *models.Object) *models.WorkflowRecord {
	rec := models.NewWorkflowRecord(source)
	rec.Revision = obj.Generation
	return rec
}

// Save implements CheckpointStore. rec.Revision is advanced on success.
func (c *BlobCheckpointStore) Save(ctx context.Context, rec *models.WorkflowRecord) error {
	loc := c.location(rec.Source)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	generation, err := c.store.PutIfGeneration(ctx, loc, data, "application/json", rec.Revision)
	if errors.Is(err, models.ErrPreconditionFailed) {
		return fmt.Errorf("%w: %s", ErrCheckpointConflict, loc.URI())
	}
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", loc.URI(), err)
	}
	rec.Revision = generation
	c.log.Debug().Str("checkpoint", loc.URI()).Int64("generation", generation).Msg("Checkpoint saved")
	return nil
}
