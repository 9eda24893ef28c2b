package etl

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
)

// Stage identifies the part of a pipeline an error came from.
type Stage string

const (
	StageExtractor   Stage = "extractor"
	StageTransformer Stage = "transformer"
	StageLoader      Stage = "loader"
)

// TransportError is returned by extractors (and loaders talking to remote targets) when a
// network call fails. Retriable errors make the whole unit retry later.
type TransportError struct {
	Status     int
	Retriable  bool
	RetryAfter time.Duration
	Header     http.Header
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport error (status %d)", e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError, treating 429 and 5xx statuses as retriable.
func NewTransportError(status int, header http.Header, err error) *TransportError {
	te := &TransportError{
		Status:    status,
		Header:    header,
		Err:       err,
		Retriable: status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
	if header != nil {
		te.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return te
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// UnitRetriableError signals transient contention on a shared resource, such as a lock needed
// for identity mapping. The whole pipeline invocation should be retried.
type UnitRetriableError struct {
	Reason string
	Err    error
}

func (e *UnitRetriableError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *UnitRetriableError) Unwrap() error {
	return e.Err
}

func NewUnitRetriable(reason string, err error) *UnitRetriableError {
	return &UnitRetriableError{Reason: reason, Err: err}
}

// ItemError is a non-fatal failure of one item, attributed to the stage it happened in.
type ItemError struct {
	Stage Stage
	// Record is the item being processed, nil for extraction failures.
	Record any
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// ErrorClassifier lets an error report its own class name for failure records.
type ErrorClassifier interface {
	ErrorClass() string
}

// ErrStoreFailure marks errors from the pipeline's own stores raised inside a stage. The Runner
// returns them to its caller instead of recording them as item failures.
var ErrStoreFailure = errors.New("pipeline store failure")

// MarkStoreFailure tags err as a store failure; nil stays nil.
func MarkStoreFailure(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrStoreFailure)
}

// IsUnitRetriable reports whether err should make the caller retry the whole unit. Timeouts
// and cancellations of nested operations count; the caller's own context is checked separately.
func IsUnitRetriable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var unitErr *UnitRetriableError
	if errors.As(err, &unitErr) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr) && transportErr.Retriable
}

// RetryAfter returns the retry hint carried by a TransportError in err's chain.
func RetryAfter(err error) time.Duration {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.RetryAfter
	}
	return 0
}

// genericClass replaces the type names of anonymous leaf errors (errors.New, fmt.Errorf and
// their cockroachdb equivalents).
const genericClass = "Error"

var anonymousErrorTypes = map[string]bool{
	"errors.errorString": true,
	"errors.joinError":   true,
	"fmt.wrapError":      true,
	"fmt.wrapErrors":     true,
	"errutil.leafError":  true,
	"errbase.opaqueLeaf": true,
}

// ErrorClass names the error for operators: an ErrorClassifier in the chain wins, otherwise
// the Go type of the innermost cause.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorClass()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "TransportError"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}
	cause := errors.UnwrapAll(err)
	t := reflect.TypeOf(cause)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", cause)
	}
	if anonymousErrorTypes[t.String()] {
		return genericClass
	}
	return t.String()
}
