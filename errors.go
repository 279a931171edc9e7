package brep

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies kernel errors.
type Kind uint8

const (
	// KindInternal means a post-condition check detected corruption. It is
	// also the kind reported for errors that did not originate in the kernel.
	KindInternal Kind = iota
	// KindValidation means an input violated a precondition. The operation did not begin.
	KindValidation
	// KindFormat means a decoder found malformed bytes.
	KindFormat
	// KindCapacity means a declared count or list length exceeds a hard cap.
	KindCapacity
	// KindCancelled means a progress callback requested cancellation.
	KindCancelled
	// KindDegenerate means a geometric operation could not proceed meaningfully.
	KindDegenerate
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindFormat:
		return "format"
	case KindCapacity:
		return "capacity"
	case KindCancelled:
		return "cancelled"
	case KindDegenerate:
		return "degenerate"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

var (
	// ErrCancelled is matched by every cancellation error via errors.Is.
	ErrCancelled = errors.New("operation cancelled")
	// ErrInvalidMesh is matched by errors reporting a mesh that fails validation.
	ErrInvalidMesh = errors.New("invalid mesh")
)

// Error is the error type returned by kernel operations.
type Error struct {
	Kind Kind
	// Op names the operation or input file that failed.
	Op string
	// Msg describes the failure and cites the index, offset or count involved.
	Msg string
	// Hint suggests a mitigation. May be empty.
	Hint string
	// Err is the wrapped cause. May be nil.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if e.Hint != "" {
		b.WriteString("\n\thint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports cancellation errors as ErrCancelled.
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && e.Kind == KindCancelled
}

// Errorf returns a kernel error of the given kind. The message is formatted
// with fmt.Sprintf semantics; use %w-free formats and set Err to wrap a cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WithHint sets the mitigation hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// Wrap wraps err with a kernel error of the given kind. If err is already a
// kernel error its kind is kept unless kind is stricter than KindInternal.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	var kerr *Error
	if errors.As(err, &kerr) && kind == KindInternal {
		kind = kerr.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first kernel error in err's chain.
// Errors not produced by the kernel report KindInternal.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindInternal
}

// Cancelled returns the cancellation error for operation op.
func Cancelled(op string) error {
	return &Error{Kind: KindCancelled, Op: op, Msg: "cancelled by progress callback"}
}
