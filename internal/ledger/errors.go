package ledger

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrNotFound marks lookups of runs and profiles that do not exist.
var ErrNotFound = errors.New("not found")

// NotFoundf builds an error that matches ErrNotFound while keeping its own message.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// ErrorKind classifies a failure recorded in the ledger.
type ErrorKind string

const (
	KindFetch      ErrorKind = "fetch"
	KindValidation ErrorKind = "validation"
	KindStorage    ErrorKind = "storage"
	KindConflict   ErrorKind = "conflict"
	KindScoring    ErrorKind = "scoring"
	KindEncoding   ErrorKind = "encoding"
	KindQueue      ErrorKind = "queue"
	KindInternal   ErrorKind = "internal"
)

var kinds = map[ErrorKind]struct{}{
	KindFetch:      {},
	KindValidation: {},
	KindStorage:    {},
	KindConflict:   {},
	KindScoring:    {},
	KindEncoding:   {},
	KindQueue:      {},
	KindInternal:   {},
}

// Valid reports whether k is one of the known kinds.
func (k ErrorKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// WithKind tags err with a kind. The innermost tag wins when KindOf inspects the chain.
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the kind err was tagged with, or fallback.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	kind := fallback
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			kind = ke.kind
		}
		err = errors.UnwrapOnce(err)
	}
	return kind
}

// Failure is the structured form of an error persisted in error rows and run metadata.
type Failure struct {
	Kind    ErrorKind
	Message string
	Trace   string
}

// NewFailure captures err, resolving its kind against fallback.
func NewFailure(err error, fallback ErrorKind) Failure {
	if err == nil {
		return Failure{Kind: fallback}
	}
	return Failure{
		Kind:    KindOf(err, fallback),
		Message: err.Error(),
		Trace:   fmt.Sprintf("%+v", err),
	}
}

// Document renders the failure for run metadata (no trace).
func (f Failure) Document() Document {
	return Document{
		"error_type": string(f.Kind),
		"message":    f.Message,
	}
}
