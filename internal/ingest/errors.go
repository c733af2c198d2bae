package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/verify-cli/internal/fetcher"
)

// Kind classifies an ingest failure.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindParse           Kind = "parse"
	KindSchemaMismatch  Kind = "schema-mismatch"
	KindEmptyPayload    Kind = "empty-payload"
	KindProviderTimeout Kind = "provider-timeout"
	KindConfig          Kind = "config"
)

// Error is a failed build of one source's index.
type Error struct {
	Kind     Kind
	SourceID string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest: %s: %s: %v", e.SourceID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, sourceID string, err error) *Error {
	return &Error{Kind: kind, SourceID: sourceID, Err: err}
}

// KindOf returns the kind of an ingest error, or "" when err is not one.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// fetchError classifies a download failure.
func fetchError(sourceID string, err error) *Error {
	if errors.Is(err, fetcher.ErrExportTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindProviderTimeout, sourceID, err)
	}
	return newError(KindNetwork, sourceID, err)
}
