package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind partitions gateway failures so the orchestrator can branch on
// them without string matching.
type ErrorKind string

const (
	// KindUnreachable covers connection failures, timeouts and 5xx answers.
	KindUnreachable ErrorKind = "unreachable"
	// KindRejected covers non-retryable 4xx answers (bad request, auth, quota).
	KindRejected ErrorKind = "rejected"
	// KindMalformed covers 2xx answers missing an expected field.
	KindMalformed ErrorKind = "malformed"
)

// Error wraps a failed gateway call with its kind, the upstream status code
// when one was received, the raw body for error logging, and the number of
// network attempts actually made.
type Error struct {
	API        string
	Kind       ErrorKind
	StatusCode int
	Attempts   int
	RawBody    json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API %s (status %d, %d attempts): %v", e.API, e.Kind, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s API %s (%d attempts): %v", e.API, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind from err, defaulting to KindUnreachable for
// plain transport errors that were never classified.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnreachable
}

// AttemptsOf reports how many network calls were made before err was
// surfaced, 0 when unknown.
func AttemptsOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Attempts
	}
	return 0
}
