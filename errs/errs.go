package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure so the boundary layer can pick an
// appropriate response instead of surfacing an opaque error.
type Kind int

const (
	// KindUnknown is the zero value; errors outside the taxonomy map here.
	KindUnknown Kind = iota
	// KindNotFound: song, track or file does not exist.
	KindNotFound
	// KindInvalidInput: bad filename, disallowed extension, empty upload,
	// out-of-range duration, fewer than two mix inputs.
	KindInvalidInput
	// KindExternal: the separator or generator failed or returned unusable output.
	KindExternal
	// KindEmptyResult: validation filtered out every candidate stem.
	KindEmptyResult
	// KindPersistence: snapshot write or read error.
	KindPersistence
	// KindBusy: a separation is already running for the same song.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindExternal:
		return "external_failure"
	case KindEmptyResult:
		return "empty_result"
	case KindPersistence:
		return "persistence_failure"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error carries a taxonomy kind, the operation that failed and an optional
// wrapped cause. The cause's text is preserved for operator debugging.
type Error struct {
	Kind Kind
	Op   string // e.g. "pipeline.separate"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a taxonomy error without a cause.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs a taxonomy error around a cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the taxonomy kind of err, or KindUnknown if err was not
// produced by this package (directly or via wrapping).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
