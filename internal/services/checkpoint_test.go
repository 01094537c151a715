package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

func TestBlobCheckpointStore_SaveAndLoad(t *testing.T) {
	store := newMemStore()
	checkpoints := NewBlobCheckpointStore(store, "checkpoints/")
	source := models.Location{Bucket: "intake", Key: "a/memo.txt"}
	store.add(source, "hello", "text/plain")

	got, err := checkpoints.Load(context.Background(), source)
	require.NoError(t, err)
	assert.Nil(t, got)

	text := "hello"
	rec := models.NewWorkflowRecord(source)
	rec.Text = &text
	rec.SourceGeneration = 1
	require.NoError(t, checkpoints.Save(context.Background(), rec))
	assert.NotZero(t, rec.Revision)

	rec.Classification = &models.Classification{Category: models.CategoryOther, Confidence: 0.2}
	require.NoError(t, checkpoints.Save(context.Background(), rec))

	loaded, err := checkpoints.Load(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "hello", *loaded.Text)
	assert.Equal(t, rec.Classification, loaded.Classification)
	assert.Equal(t, rec.Revision, loaded.Revision)
	assert.Equal(t, int64(1), loaded.SourceGeneration)
}

func TestBlobCheckpointStore_ReuploadedSourceIsReprocessed(t *testing.T) {
	f := newSupervisorFixture()
	checkpoints := NewBlobCheckpointStore(f.store, "checkpoints/")
	f.sup.observer = func(ctx context.Context, _ Stage, rec *models.WorkflowRecord) error {
		return checkpoints.Save(ctx, rec)
	}
	source := models.Location{Bucket: "intake", Key: "forms/upload.txt"}
	f.store.add(source, "old memo", "text/plain")

	first := models.NewWorkflowRecord(source)
	require.NoError(t, f.sup.Run(context.Background(), first))
	require.Equal(t, 2, f.model.calls())

	f.store.add(source, "brand new KYC form", "text/plain")
	rec, err := checkpoints.Load(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.HasText(), "a checkpoint of the previous upload is not resumed")

	require.NoError(t, f.sup.Run(context.Background(), rec))

	assert.Equal(t, "brand new KYC form", *rec.Text)
	assert.Equal(t, 4, f.model.calls())
	stored, ok := f.store.text(*rec.TextLocation)
	require.True(t, ok)
	assert.Equal(t, "brand new KYC form", stored)
}

func TestBlobCheckpointStore_SameUploadResumes(t *testing.T) {
	f := newSupervisorFixture()
	checkpoints := NewBlobCheckpointStore(f.store, "checkpoints/")
	f.sup.observer = func(ctx context.Context, _ Stage, rec *models.WorkflowRecord) error {
		return checkpoints.Save(ctx, rec)
	}
	source := models.Location{Bucket: "intake", Key: "memo.txt"}
	f.store.add(source, "notes", "text/plain")
	require.NoError(t, f.sup.Run(context.Background(), models.NewWorkflowRecord(source)))
	calls := f.model.calls()

	rec, err := checkpoints.Load(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.HasExtraction())

	require.NoError(t, f.sup.Run(context.Background(), rec))
	assert.Equal(t, calls, f.model.calls())
}

func TestBlobCheckpointStore_ConcurrentWriterConflicts(t *testing.T) {
	store := newMemStore()
	checkpoints := NewBlobCheckpointStore(store, "checkpoints/")
	source := models.Location{Bucket: "intake", Key: "memo.txt"}

	first := models.NewWorkflowRecord(source)
	second := models.NewWorkflowRecord(source)
	require.NoError(t, checkpoints.Save(context.Background(), first))

	err := checkpoints.Save(context.Background(), second)

	assert.ErrorIs(t, err, ErrCheckpointConflict)
}

func TestBlobCheckpointStore_IgnoresForeignCheckpoint(t *testing.T) {
	store := newMemStore()
	checkpoints := NewBlobCheckpointStore(store, "checkpoints/")
	other := models.NewWorkflowRecord(models.Location{Bucket: "intake", Key: "old/memo.txt"})
	require.NoError(t, checkpoints.Save(context.Background(), other))

	source := models.Location{Bucket: "intake", Key: "new/memo.txt"}
	rec, err := checkpoints.Load(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, source, rec.Source)
	assert.False(t, rec.HasText())
	require.NoError(t, checkpoints.Save(context.Background(), rec), "an ignored checkpoint is overwritten")
}

func TestBlobCheckpointStore_IgnoresUnreadableCheckpoint(t *testing.T) {
	store := newMemStore()
	store.add(models.Location{Bucket: "intake", Key: "checkpoints/memo.txt.json"}, "{truncated", "application/json")
	checkpoints := NewBlobCheckpointStore(store, "checkpoints/")

	rec, err := checkpoints.Load(context.Background(), models.Location{Bucket: "intake", Key: "memo.txt"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.False(t, rec.HasText())
	assert.NotZero(t, rec.Revision)
}
