package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/observability"
)

type functionFixture struct {
	store   *memStore
	ocr     *stubOCR
	model   *stubModel
	tracker *recordingTracker
	trigger *recordingTrigger
	metrics *observability.Metrics
	fn      *DocumentFunction
}

func newFunctionFixture(resume bool) *functionFixture {
	f := &functionFixture{
		store:   newMemStore(),
		ocr:     &stubOCR{},
		model:   &stubModel{classification: memoClassification, processing: memoProcessing},
		tracker: &recordingTracker{},
		trigger: &recordingTrigger{},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	f.fn = NewDocumentFunctionWithDependencies(Dependencies{
		Store:       f.store,
		OCR:         f.ocr,
		Model:       f.model,
		Checkpoints: NewBlobCheckpointStore(f.store, "checkpoints/"),
		Tracker:     f.tracker,
		Trigger:     f.trigger,
		Metrics:     f.metrics,
	}, DocumentConfig{
		Extractor: ExtractorConfig{
			TextOutputPrefix: "extracted-text/",
			PollInterval:     time.Millisecond,
			MaxPolls:         5,
		},
		ResultOutputPrefix:   "outputs/",
		ResumeFromCheckpoint: resume,
		IgnoredPrefixes:      []string{"extracted-text/", "outputs/", "checkpoints/"},
	})
	return f
}

func TestProcess_MemoEndToEnd(t *testing.T) {
	f := newFunctionFixture(false)
	f.store.add(models.Location{Bucket: "intake", Key: "intake/memo.txt"}, "Client meeting notes", "text/plain")

	res, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: "intake", Key: "intake/memo.txt"})
	require.NoError(t, err)

	assert.Equal(t, "intake", res.Bucket)
	assert.Equal(t, "intake/memo.txt", res.Key)
	assert.Equal(t, "gs://intake/extracted-text/memo.txt.txt", res.TextLocation)
	assert.Equal(t, models.CategorySummaryMemo, res.Classification.Category)
	assert.InDelta(t, 0.93, res.Classification.Confidence, 1e-9)
	assert.Equal(t, "Client meeting notes about rebalancing.", res.ProcessingResult.Summary)
	assert.Equal(t, "gs://intake/outputs/memo.txt.json", res.ResultLocation)
	assert.Equal(t, "gs://intake/outputs/memo.txt.html", res.ReportLocation)

	text, ok := f.store.text(models.Location{Bucket: "intake", Key: "extracted-text/memo.txt.txt"})
	require.True(t, ok)
	assert.Equal(t, "Client meeting notes", text)

	stored, ok := f.store.text(models.Location{Bucket: "intake", Key: "outputs/memo.txt.json"})
	require.True(t, ok)
	var published models.ProcessDocumentResponse
	require.NoError(t, json.Unmarshal([]byte(stored), &published))
	assert.Equal(t, *res, published)

	report, ok := f.store.text(models.Location{Bucket: "intake", Key: "outputs/memo.txt.html"})
	require.True(t, ok)
	assert.Contains(t, report, "Rebalance into bonds")

	_, ok = f.store.text(models.Location{Bucket: "intake", Key: "checkpoints/memo.txt.json"})
	assert.False(t, ok, "checkpoints are only written when resuming is enabled")

	assert.Equal(t, []string{
		models.StatusReceived,
		models.StatusTextExtracted,
		models.StatusClassified,
		models.StatusProcessed,
		models.StatusCompleted,
	}, f.tracker.statuses)
	require.Len(t, f.trigger.args, 1)
	assert.Same(t, res, f.trigger.args[0].Result)
	assert.NotEmpty(t, f.trigger.args[0].InvocationID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Invocations.WithLabelValues("success")))
}

func TestProcess_InvalidInput(t *testing.T) {
	for _, req := range []models.ProcessDocumentRequest{
		{Bucket: "intake"},
		{Key: "intake/memo.txt"},
		{},
	} {
		f := newFunctionFixture(true)

		_, err := f.fn.Process(context.Background(), req)

		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "'bucket' and 'key'")
		assert.Zero(t, f.store.gets+f.store.puts)
		assert.Zero(t, f.ocr.calls())
		assert.Zero(t, f.model.calls())
		assert.Empty(t, f.tracker.statuses)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Invocations.WithLabelValues("input_error")))
	}
}

func TestProcess_OCRFailureSkipsModel(t *testing.T) {
	f := newFunctionFixture(false)
	f.ocr.statuses = []models.JobStatus{models.JobRunning, models.JobFailed}
	f.store.add(models.Location{Bucket: "intake", Key: "scans/statement.pdf"}, scannedPDF, "application/pdf")

	_, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: "intake", Key: "scans/statement.pdf"})

	assert.ErrorIs(t, err, ErrOCRJobFailed)
	assert.Zero(t, f.model.calls())
	assert.Equal(t, models.StatusFailed, f.tracker.statuses[len(f.tracker.statuses)-1])
	assert.ErrorIs(t, f.tracker.failure, ErrOCRJobFailed)
	assert.Empty(t, f.trigger.args)
	_, ok := f.store.text(models.Location{Bucket: "intake", Key: "outputs/statement.pdf.json"})
	assert.False(t, ok)
}

func TestProcess_ClassificationParseFailureSkipsProcessing(t *testing.T) {
	f := newFunctionFixture(false)
	f.model.classification = "The document seems to be a memo."
	f.store.add(models.Location{Bucket: "intake", Key: "memo.txt"}, "notes", "text/plain")

	_, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: "intake", Key: "memo.txt"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), ClassificationContext)
	assert.Equal(t, 1, f.model.classifyCalls)
	assert.Zero(t, f.model.processCalls)
}

func TestProcess_ReportWriteFailureIsNotFatal(t *testing.T) {
	f := newFunctionFixture(false)
	f.store.add(models.Location{Bucket: "intake", Key: "memo.txt"}, "notes", "text/plain")
	f.store.putErr["outputs/memo.txt.html"] = assert.AnError

	res, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: "intake", Key: "memo.txt"})
	require.NoError(t, err)

	assert.Empty(t, res.ReportLocation)
	assert.Equal(t, "gs://intake/outputs/memo.txt.json", res.ResultLocation)
}

func TestProcess_ResultWriteFailureIsFatal(t *testing.T) {
	f := newFunctionFixture(false)
	f.store.add(models.Location{Bucket: "intake", Key: "memo.txt"}, "notes", "text/plain")
	f.store.putErr["outputs/memo.txt.json"] = assert.AnError

	_, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: "intake", Key: "memo.txt"})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, f.trigger.args)
}

func TestProcess_ResumesFromCheckpoint(t *testing.T) {
	f := newFunctionFixture(true)
	source := models.Location{Bucket: "intake", Key: "scans/statement.pdf"}
	f.store.add(source, scannedPDF, "application/pdf")
	text := "Statement text"
	checkpoint := &models.WorkflowRecord{
		Source:           source,
		Text:             &text,
		TextLocation:     &models.Location{Bucket: "intake", Key: "extracted-text/statement.pdf.txt"},
		Classification:   &models.Classification{Category: models.CategoryAccountStatement, Confidence: 0.88},
		SourceGeneration: 1,
	}
	data, err := json.Marshal(checkpoint)
	require.NoError(t, err)
	f.store.add(models.Location{Bucket: "intake", Key: "checkpoints/statement.pdf.json"}, string(data), "application/json")

	res, err := f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: source.Bucket, Key: source.Key})
	require.NoError(t, err)

	assert.Zero(t, f.ocr.calls())
	assert.Zero(t, f.model.classifyCalls)
	assert.Equal(t, 1, f.model.processCalls)
	assert.Equal(t, models.CategoryAccountStatement, res.Classification.Category)
	assert.Equal(t, "gs://intake/extracted-text/statement.pdf.txt", res.TextLocation)

	saved, ok := f.store.text(models.Location{Bucket: "intake", Key: "checkpoints/statement.pdf.json"})
	require.True(t, ok)
	var rec models.WorkflowRecord
	require.NoError(t, json.Unmarshal([]byte(saved), &rec))
	assert.True(t, rec.HasExtraction())

	// A second invocation finds every stage done and only republishes.
	_, err = f.fn.Process(context.Background(), models.ProcessDocumentRequest{Bucket: source.Bucket, Key: source.Key})
	require.NoError(t, err)
	assert.Equal(t, 1, f.model.processCalls)
}

func TestProcessEvent_SkipsPipelineOutputs(t *testing.T) {
	f := newFunctionFixture(false)

	for _, key := range []string{"outputs/memo.txt.json", "extracted-text/memo.txt.txt", "checkpoints/memo.txt.json"} {
		require.NoError(t, f.fn.ProcessEvent(context.Background(), models.GCSEvent{Bucket: "intake", Name: key}))
	}

	assert.Zero(t, f.store.gets+f.store.puts)
	assert.Empty(t, f.tracker.statuses)
}

func TestProcessEvent_ProcessesUploads(t *testing.T) {
	f := newFunctionFixture(false)
	f.store.add(models.Location{Bucket: "intake", Key: "intake/memo.txt"}, "notes", "text/plain")

	require.NoError(t, f.fn.ProcessEvent(context.Background(), models.GCSEvent{Bucket: "intake", Name: "intake/memo.txt"}))

	_, ok := f.store.text(models.Location{Bucket: "intake", Key: "outputs/memo.txt.json"})
	assert.True(t, ok)
}
