package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/hashicorp/errwrap"
)

// Kind classifies an Error so callers can react without matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidArgument is returned before any I/O when a required input is
	// empty or names something that does not exist.
	KindInvalidArgument
	// KindNotFound is returned when an artifact, category or node can not be located.
	KindNotFound
	// KindTypeMismatch is returned when a node is handed to a processor that does
	// not handle its type.
	KindTypeMismatch
	// KindInvalidPath is returned when a relative reference walks above the root.
	KindInvalidPath
	// KindTransientIO covers network and local disk failures that may succeed on retry.
	KindTransientIO
	// KindConflict is returned when a session commit loses an optimistic
	// concurrency check.
	KindConflict
	// KindProcessing wraps any other failure raised while a session was open.
	KindProcessing
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindTypeMismatch:
		return "type mismatch"
	case KindInvalidPath:
		return "invalid path"
	case KindTransientIO:
		return "transient io"
	case KindConflict:
		return "conflict"
	case KindProcessing:
		return "processing failure"
	}

	return "unknown"
}

// Sentinel values usable with errors.Is
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTypeMismatch    = &Error{Kind: KindTypeMismatch}
	ErrInvalidPath     = &Error{Kind: KindInvalidPath}
	ErrTransientIO     = &Error{Kind: KindTransientIO}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrProcessing      = &Error{Kind: KindProcessing}
)

// Error is the error type returned by every public operation of the module
type Error struct {
	Kind Kind
	// Op is the operation that failed, i.e. "install"
	Op string
	// Message is a human readable description
	Message string
	// Err is the underlying cause, if any
	Err error
	// Causes holds errors that were recovered from before the operation gave up,
	// for example one error per repository that was tried during an install
	Causes []error
}

// Ensure Error can be walked by errwrap
var _ errwrap.Wrapper = (*Error)(nil)

func (e *Error) Error() string {
	sb := strings.Builder{}

	if e.Op != "" {
		sb.WriteString(e.Op + ": ")
	}

	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}

	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// WrappedErrors implements errwrap.Wrapper
func (e *Error) WrappedErrors() []error {
	errs := []error{}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return append(errs, e.Causes...)
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// InvalidArgument creates a KindInvalidArgument error
func InvalidArgument(op, format string, args ...any) *Error {
	return newError(KindInvalidArgument, op, nil, format, args...)
}

// NotFound creates a KindNotFound error
func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, nil, format, args...)
}

// TypeMismatch creates a KindTypeMismatch error
func TypeMismatch(op, format string, args ...any) *Error {
	return newError(KindTypeMismatch, op, nil, format, args...)
}

// InvalidPath creates a KindInvalidPath error
func InvalidPath(op, format string, args ...any) *Error {
	return newError(KindInvalidPath, op, nil, format, args...)
}

// TransientIO creates a KindTransientIO error caused by err
func TransientIO(op string, err error, format string, args ...any) *Error {
	return newError(KindTransientIO, op, err, format, args...)
}

// Conflict creates a KindConflict error
func Conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, nil, format, args...)
}

// Wrap turns err into a KindProcessing error. Errors that already carry a kind
// are returned unchanged so that the original classification survives.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if stderrors.As(err, &e) {
		return err
	}

	return &Error{
		Kind:    KindProcessing,
		Op:      op,
		Message: errwrap.Wrapf("unexpected failure: {{err}}", err).Error(),
		Err:     err,
	}
}

// WithCauses attaches recovered errors to e and returns it
func (e *Error) WithCauses(causes ...error) *Error {
	e.Causes = append(e.Causes, causes...)
	return e
}

// KindOf returns the Kind of the first Error in the chain of err
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// Is is stdlib errors.Is, re-exported so callers do not need two imports
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is stdlib errors.As
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New is stdlib errors.New
func New(text string) error {
	return stderrors.New(text)
}
