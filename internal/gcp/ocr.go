package gcp

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// ErrUnsupportedDocument is returned for extensions the OCR backends cannot read.
var ErrUnsupportedDocument = errors.New("unsupported document type for OCR")

var ocrMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

func ocrMimeType(loc models.Location) (string, error) {
	mimeType, ok := ocrMimeTypes[loc.Ext()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, loc.URI())
	}
	return mimeType, nil
}

// textBlocks turns the full text of a page into one LINE block per line.
func textBlocks(text string) []models.Block {
	var blocks []models.Block
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		blocks = append(blocks, models.Block{Type: models.BlockLine, Text: line})
	}
	return blocks
}

// jobRetention bounds how long a job that was never read to the end, such
// as one abandoned at the poll limit, stays registered.
const jobRetention = 6 * time.Hour

// ocrJob tracks where a batch job writes its JSON result shards.
type ocrJob struct {
	output  models.Location
	shards  []string // sorted, listed once the job has succeeded
	started time.Time
}

// jobRegistry remembers the output location of jobs started by this process.
// A job is released once its last result page is read or it fails.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*ocrJob
	now  func() time.Time
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*ocrJob), now: time.Now}
}

func (r *jobRegistry) add(jobID string, output models.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, job := range r.jobs {
		if now.Sub(job.started) > jobRetention {
			delete(r.jobs, id)
		}
	}
	r.jobs[jobID] = &ocrJob{output: output, started: now}
}

func (r *jobRegistry) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

func (r *jobRegistry) get(jobID string) (*ocrJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown OCR job %s", jobID)
	}
	return job, nil
}

// outputLocation picks a fresh result prefix for one job.
func outputLocation(bucket, prefix string, source models.Location) models.Location {
	if bucket == "" {
		bucket = source.Bucket
	}
	return models.Location{Bucket: bucket, Key: prefix + uuid.NewString() + "/"}
}

// shardPage reads shard number token of a finished job. An empty token is
// the first shard. It returns the shard's bytes and the next token, and
// releases the job after its last shard.
func shardPage(ctx context.Context, gcs *GCSStore, jobs *jobRegistry, jobID, token string) ([]byte, string, error) {
	job, err := jobs.get(jobID)
	if err != nil {
		return nil, "", err
	}

	jobs.mu.Lock()
	shards := job.shards
	jobs.mu.Unlock()
	if shards == nil {
		shards, err = listShards(ctx, gcs.Client(), job.output)
		if err != nil {
			return nil, "", err
		}
		jobs.mu.Lock()
		job.shards = shards
		jobs.mu.Unlock()
	}
	if len(shards) == 0 {
		jobs.release(jobID)
		return nil, "", nil
	}

	index, next, err := shardAt(shards, token)
	if err != nil {
		return nil, "", fmt.Errorf("%w for OCR job %s", err, jobID)
	}
	obj, err := gcs.Get(ctx, models.Location{Bucket: job.output.Bucket, Key: shards[index]})
	if err != nil {
		return nil, "", err
	}
	if next == "" {
		jobs.release(jobID)
	}
	return obj.Data, next, nil
}

// shardAt resolves a page token to a shard index and the token after it.
func shardAt(shards []string, token string) (int, string, error) {
	index := 0
	if token != "" {
		var err error
		if index, err = strconv.Atoi(token); err != nil || index < 0 || index >= len(shards) {
			return 0, "", fmt.Errorf("invalid page token %q", token)
		}
	}
	next := ""
	if index+1 < len(shards) {
		next = strconv.Itoa(index + 1)
	}
	return index, next, nil
}

func listShards(ctx context.Context, client *storage.Client, output models.Location) ([]string, error) {
	var names []string
	it := client.Bucket(output.Bucket).Objects(ctx, &storage.Query{Prefix: output.Key})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list OCR output under %s: %w", output.URI(), err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			names = append(names, attrs.Name)
		}
	}
	sortShards(names)
	return names, nil
}

var trailingNumber = regexp.MustCompile(`(\d+)\D*$`)

// sortShards orders result shards by the last number in their file name,
// so output-21-to-40.json follows output-1-to-20.json.
func sortShards(names []string) {
	number := func(name string) int {
		m := trailingNumber.FindStringSubmatch(path.Base(name))
		if m == nil {
			return -1
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := number(names[i]), number(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}
