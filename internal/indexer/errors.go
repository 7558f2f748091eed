package indexer

import (
	"context"
	"errors"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/textutil"
)

// MaxErrorLen caps persisted enrichment errors.
const MaxErrorLen = 500

var (
	// ErrCanceled marks a batch item abandoned at a cancellation checkpoint.
	ErrCanceled = errors.New("enrichment canceled")
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNoSynthesizer is returned when enrichment is requested without a chat model.
	ErrNoSynthesizer = errors.New("no chat model configured")
)

// Advisory and failure texts written to enrichment_error.
const (
	scrapeAdvisory  = "Scraping failed: content could not be extracted. Please review AI guessed metadata."
	canceledMessage = "Enrichment canceled: the import job was canceled before this item was processed."
	skippedMessage  = "Enrichment skipped: the item was skipped before it was processed."
)

// stageError tags an error with the kind of failure it represents.
type stageError struct {
	kind string
	err  error
}

func (e *stageError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func lookupError(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return &stageError{kind: "NotFoundError", err: err}
	}
	return &stageError{kind: "StoreError", err: err}
}

func synthesisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &stageError{kind: "TimeoutError", err: err}
	}
	return &stageError{kind: "SynthesisError", err: err}
}

func storeError(err error) error {
	return &stageError{kind: "StoreError", err: err}
}

// cancelError carries the item status a checkpoint decided on.
type cancelError struct {
	status string
}

func (e *cancelError) Error() string        { return "enrichment " + e.status }
func (e *cancelError) Is(target error) bool { return target == ErrCanceled }

// failureMessage renders err as "<kind>: <message>", at most MaxErrorLen runes.
func failureMessage(err error) string {
	var se *stageError
	msg := err.Error()
	if !errors.As(err, &se) {
		msg = "EnrichmentError: " + msg
	}
	return textutil.Truncate(msg, MaxErrorLen)
}
