package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

var (
	// ErrInvalidInput is returned when the invocation payload lacks storage coordinates.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOCRJobFailed is returned when an asynchronous OCR job ends in a
	// terminal state other than SUCCEEDED.
	ErrOCRJobFailed = errors.New("OCR job did not succeed")

	// ErrOCRPollLimit is returned when an OCR job is still running after the
	// configured number of polls.
	ErrOCRPollLimit = errors.New("OCR job did not finish within the poll limit")

	// ErrCheckpointConflict is returned when another invocation saved the
	// same checkpoint first.
	ErrCheckpointConflict = errors.New("checkpoint was modified by another invocation")
)

// OCRJobError describes an OCR job that ended without success.
type OCRJobError struct {
	JobID   string
	Status  models.JobStatus
	Message string
}

func (e *OCRJobError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("OCR job %s did not succeed, status: %s: %s", e.JobID, e.Status, e.Message)
	}
	return fmt.Sprintf("OCR job %s did not succeed, status: %s", e.JobID, e.Status)
}

func (e *OCRJobError) Unwrap() error {
	return ErrOCRJobFailed
}
