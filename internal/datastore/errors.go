package datastore

import (
	"errors"
	"fmt"
)

// Kind classifies datastore errors so the HTTP layer can map them to status
// codes without string matching.
type Kind int

const (
	// KindValidation: caller-fixable bad input, detected before any SQL runs.
	KindValidation Kind = iota + 1
	// KindNotFound: the referenced record does not exist.
	KindNotFound
	// KindConflict: unique constraint violation (duplicate name / pair).
	KindConflict
	// KindInUse: referential guard refused a delete.
	KindInUse
	// KindUnavailable: the backend connection is not ready or was lost.
	KindUnavailable
	// KindQuery: the underlying driver failed; the driver message is kept
	// verbatim because dynamic SQL against operator-chosen tables needs it
	// for diagnosis.
	KindQuery
)

// Error is the datastore error type. Use KindOf to classify wrapped errors.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or 0 when err is not a datastore error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func inUse(msg string) error {
	return &Error{Kind: KindInUse, Msg: msg}
}

func unavailable(err error) error {
	return &Error{Kind: KindUnavailable, Msg: "datastore not ready", Err: err}
}

func queryFailed(msg string, err error) error {
	return &Error{Kind: KindQuery, Msg: msg, Err: err}
}
