package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTimeout matches any NetworkError caused by a request deadline
var ErrTimeout = errors.New("request timed out")

// ValidationError is a required field that is missing or malformed.
// It is always raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NetworkError is a request that did not complete: timeout, abort or connectivity
type NetworkError struct {
	Op      string
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: request timed out", e.Op, e.URL)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) match timed out requests
func (e *NetworkError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// APIError is a non-2xx backend response
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

// TransformError reports a processing or export stage that failed and was skipped
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s stage skipped: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// BulkResult reports the outcome of a multi-request operation
type BulkResult struct {
	Succeeded []int64
	Failed    map[int64]error
}

// NewBulkResult creates an empty BulkResult
func NewBulkResult() *BulkResult {
	return &BulkResult{Failed: make(map[int64]error)}
}

// Total returns the number of items attempted
func (b *BulkResult) Total() int {
	return len(b.Succeeded) + len(b.Failed)
}

// OK reports whether every item succeeded
func (b *BulkResult) OK() bool {
	return len(b.Failed) == 0
}

// Err summarises failures, or returns nil when everything succeeded
func (b *BulkResult) Err() error {
	if b.OK() {
		return nil
	}
	ids := make([]int64, 0, len(b.Failed))
	for id := range b.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d: %v", id, b.Failed[id]))
	}
	return fmt.Errorf("%d of %d failed (%s)", len(b.Failed), b.Total(), strings.Join(parts, "; "))
}
