package normalize

import (
	"errors"
	"fmt"
)

// ErrUnparseable is returned when no JSON object can be recovered from model output.
var ErrUnparseable = errors.New("model output is not valid JSON")

// ParseError carries the calling stage and the offending text of a failed parse.
type ParseError struct {
	// Context names the stage that asked for the parse (e.g. "ClassificationAgent").
	Context string

	// Text is the raw model output.
	Text string

	// Err is the last decoder error.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid JSON after extraction: %v | text=%q", e.Context, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnparseable so callers need not know the decoder error.
func (e *ParseError) Is(target error) bool {
	return target == ErrUnparseable
}
