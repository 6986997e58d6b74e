package llm

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	TransportFailure  FailureKind = "transport_failure"
	MalformedResponse FailureKind = "malformed_response"
	MissingCredential FailureKind = "missing_credential"
)

var ErrMissingCredential = errors.New("llm api credential is not configured")

// ExtractionFailure is returned once the retry budget is spent, or right
// away when the client has no credential.
type ExtractionFailure struct {
	Kind     FailureKind
	Attempts int
	Err      error
}

func (e *ExtractionFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm extraction failed (%s) after %d attempt(s)", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("llm extraction failed (%s) after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// AsExtractionFailure reports whether err carries an ExtractionFailure.
func AsExtractionFailure(err error) (*ExtractionFailure, bool) {
	var failure *ExtractionFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
