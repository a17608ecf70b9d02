package upstream

import (
	"errors"
	"fmt"
)

// ErrorKind separates transport/status failures from body-level failures so
// callers can label metrics and source reports without string matching.
type ErrorKind string

const (
	// KindFetch covers transport errors and non-2xx responses.
	KindFetch ErrorKind = "fetch"
	// KindParse covers malformed or empty response bodies.
	KindParse ErrorKind = "parse"
)

// FeedError is a source-local upstream failure. It is never fatal to
// aggregation: the aggregator converts it into a default fragment.
type FeedError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s feed: %v", e.Source, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

func fetchErr(source string, err error) error {
	return &FeedError{Source: source, Kind: KindFetch, Err: err}
}

func parseErr(source string, err error) error {
	return &FeedError{Source: source, Kind: KindParse, Err: err}
}

// KindOf reports the error kind of err, defaulting to KindFetch for errors
// that did not originate in this package.
func KindOf(err error) ErrorKind {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindFetch
}
