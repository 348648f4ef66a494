package extraction

import (
	"errors"
	"fmt"
)

// ErrExtractionFailed is matched by every ExtractionFailedError.
var ErrExtractionFailed = errors.New("extraction failed")

// ParseError is a model reply that was not valid JSON or did not match the expected schema.
type ParseError struct {
	Kind    Kind
	Attempt int
	Raw     string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable %s reply on attempt %d: %v", e.Kind, e.Attempt, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ExtractionFailedError is returned once the retry ceiling is exhausted or the model call failed
// with a non-retryable error.
type ExtractionFailedError struct {
	Kind     Kind
	URL      string
	Attempts int
	Cause    error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("%s extraction failed for %s after %d attempt(s): %v", e.Kind, e.URL, e.Attempts, e.Cause)
}

func (e *ExtractionFailedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrExtractionFailed) hold.
func (e *ExtractionFailedError) Is(target error) bool {
	return target == ErrExtractionFailed
}
