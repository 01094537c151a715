package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// memStore is an in-memory ConditionalStore with call counters.
type memStore struct {
	mu         sync.Mutex
	objects    map[models.Location]*models.Object
	generation int64
	putErr     map[string]error // by key
	gets, puts int
	stats      int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[models.Location]*models.Object), putErr: make(map[string]error)}
}

func (s *memStore) add(loc models.Location, data, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.objects[loc] = &models.Object{Data: []byte(data), ContentType: contentType, Generation: s.generation}
}

func (s *memStore) text(loc models.Location) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[loc]
	if !ok {
		return "", false
	}
	return string(obj.Data), true
}

func (s *memStore) Get(_ context.Context, loc models.Location) (*models.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	obj, ok := s.objects[loc]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", loc.URI(), models.ErrNotFound)
	}
	cp := *obj
	return &cp, nil
}

func (s *memStore) Generation(_ context.Context, loc models.Location) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats++
	obj, ok := s.objects[loc]
	if !ok {
		return 0, fmt.Errorf("stat %s: %w", loc.URI(), models.ErrNotFound)
	}
	return obj.Generation, nil
}

func (s *memStore) Put(_ context.Context, loc models.Location, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if err := s.putErr[loc.Key]; err != nil {
		return err
	}
	s.generation++
	s.objects[loc] = &models.Object{Data: append([]byte(nil), data...), ContentType: contentType, Generation: s.generation}
	return nil
}

func (s *memStore) PutIfGeneration(_ context.Context, loc models.Location, data []byte, contentType string, generation int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	var current int64
	if obj, ok := s.objects[loc]; ok {
		current = obj.Generation
	}
	if current != generation {
		return 0, fmt.Errorf("put %s: %w", loc.URI(), models.ErrPreconditionFailed)
	}
	s.generation++
	s.objects[loc] = &models.Object{Data: append([]byte(nil), data...), ContentType: contentType, Generation: s.generation}
	return s.generation, nil
}

// stubOCR replays a status sequence for first-page polls and serves result
// pages by token.
type stubOCR struct {
	mu         sync.Mutex
	statuses   []models.JobStatus
	pages      map[string]*models.DetectionPage
	syncBlocks []models.Block
	message    string

	started, polls, pageReads, syncCalls int
}

func (o *stubOCR) StartAsyncDetection(context.Context, models.Location) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
	return "job-1", nil
}

func (o *stubOCR) GetDetectionResults(_ context.Context, _ string, nextToken string) (*models.DetectionPage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if nextToken != "" {
		o.pageReads++
		page, ok := o.pages[nextToken]
		if !ok {
			return nil, fmt.Errorf("no page %q", nextToken)
		}
		return page, nil
	}

	o.polls++
	i := o.polls - 1
	if i >= len(o.statuses) {
		i = len(o.statuses) - 1
	}
	status := o.statuses[i]
	if status != models.JobSucceeded {
		return &models.DetectionPage{Status: status, Message: o.message}, nil
	}
	page := &models.DetectionPage{Status: status}
	if first, ok := o.pages[""]; ok {
		page.Blocks = first.Blocks
		page.NextToken = first.NextToken
		page.PageCount = first.PageCount
	}
	return page, nil
}

func (o *stubOCR) DetectSync(context.Context, models.Location) ([]models.Block, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncCalls++
	return o.syncBlocks, nil
}

func (o *stubOCR) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started + o.polls + o.pageReads + o.syncCalls
}

// stubModel answers classification and processing prompts with fixed responses.
type stubModel struct {
	mu               sync.Mutex
	classification   any
	processing       any
	err              error
	classifyCalls    int
	processCalls     int
	lastProcessInput string
}

func (m *stubModel) Invoke(_ context.Context, prompt string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.HasPrefix(prompt, "You are ClassificationAgent") {
		m.classifyCalls++
		if m.err != nil {
			return nil, m.err
		}
		return m.classification, nil
	}
	m.processCalls++
	m.lastProcessInput = prompt
	if m.err != nil {
		return nil, m.err
	}
	return m.processing, nil
}

func (m *stubModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls + m.processCalls
}

// recordingTracker records status transitions.
type recordingTracker struct {
	mu       sync.Mutex
	statuses []string
	failure  error
}

func (t *recordingTracker) Start(context.Context, string, models.Location) error {
	t.record(models.StatusReceived)
	return nil
}

func (t *recordingTracker) Update(_ context.Context, _ models.Location, status string, _ *models.WorkflowRecord) error {
	t.record(status)
	return nil
}

func (t *recordingTracker) Complete(context.Context, models.Location, *models.ProcessDocumentResponse) error {
	t.record(models.StatusCompleted)
	return nil
}

func (t *recordingTracker) Fail(_ context.Context, _ models.Location, cause error) error {
	t.mu.Lock()
	t.failure = cause
	t.mu.Unlock()
	t.record(models.StatusFailed)
	return nil
}

func (t *recordingTracker) record(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = append(t.statuses, status)
}

// recordingTrigger records report workflow arguments.
type recordingTrigger struct {
	args []*models.ReportWorkflowArgument
	err  error
}

func (t *recordingTrigger) Trigger(_ context.Context, arg *models.ReportWorkflowArgument) error {
	t.args = append(t.args, arg)
	return t.err
}

const (
	memoClassification = `Here is the classification:
{"category": "SUMMARY_MEMO", "confidence": 0.93}
Let me know if you need anything else.`

	memoProcessing = `{
  "category": "SUMMARY_MEMO",
  "summary": "Client meeting notes about rebalancing.",
  "key_entities": {"clients": ["Jane Doe"], "advisors": ["Sam Lee"], "accounts": [], "tickers": ["VTI"]},
  "extracted_fields": {"main_points": ["Rebalance into bonds"], "action_items": "Send proposal"}
}`
)

func lineBlocks(lines ...string) []models.Block {
	blocks := make([]models.Block, 0, len(lines))
	for _, l := range lines {
		blocks = append(blocks, models.Block{Type: models.BlockLine, Text: l})
	}
	return blocks
}
