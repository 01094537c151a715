package models

// Object is a blob fetched from storage with its content type hint.
type Object struct {
	Data        []byte
	ContentType string
	// Generation is the storage revision of the object, 0 when unknown.
	Generation int64
}

// JobStatus is the state of an asynchronous text detection job.
type JobStatus string

const (
	JobRunning        JobStatus = "RUNNING"
	JobSucceeded      JobStatus = "SUCCEEDED"
	JobFailed         JobStatus = "FAILED"
	JobPartialSuccess JobStatus = "PARTIAL_SUCCESS"
)

// Terminal reports whether no further status change will occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobPartialSuccess:
		return true
	}
	return false
}

// BlockType classifies a detected block of text.
type BlockType string

const (
	BlockPage BlockType = "PAGE"
	BlockLine BlockType = "LINE"
	BlockWord BlockType = "WORD"
)

// Block is one unit of detected text.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

// DetectionPage is one page of results of an asynchronous detection job.
// Blocks are only meaningful once Status is terminal; NextToken is empty on
// the last page.
type DetectionPage struct {
	Status    JobStatus
	Blocks    []Block
	NextToken string
	// Message carries the backend's failure reason, if any.
	Message string
	// PageCount is the number of document pages covered by Blocks, 0 when
	// the backend does not report it.
	PageCount int
}
