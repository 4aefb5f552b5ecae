// Package cmn holds process-wide configuration and the error taxonomy (§7) shared
// by every component, mirroring the teacher's cmn package (cmn.NewErrXactUsePrev,
// cmn.NewErrAborted in xact/xs/tcb.go) generalized to NebulaStream's own error kinds.
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind classifies a runtime failure per §7.
type ErrKind int

const (
	ErrResourceExhausted ErrKind = iota
	ErrCannotOpenSource
	ErrCannotOpenSink
	ErrPipelineExecutionFailed
	ErrInvalidSequence
	ErrDeadlineExceeded
	ErrConfigurationError
)

func (k ErrKind) String() string {
	switch k {
	case ErrResourceExhausted:
		return "ResourceExhausted"
	case ErrCannotOpenSource:
		return "CannotOpenSource"
	case ErrCannotOpenSink:
		return "CannotOpenSink"
	case ErrPipelineExecutionFailed:
		return "PipelineExecutionFailed"
	case ErrInvalidSequence:
		return "InvalidSequence"
	case ErrDeadlineExceeded:
		return "DeadlineExceeded"
	case ErrConfigurationError:
		return "ConfigurationError"
	default:
		return "Unknown"
	}
}

// EngineError is the concrete error type every taxonomy constructor below produces.
// Fatal marks kinds that §7 treats as unrecoverable-process-bug (InvalidSequence,
// DeadlineExceeded): callers that see Fatal=true must not attempt to continue the qep.
type EngineError struct {
	Kind  ErrKind
	Fatal bool
	cause error
}

func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return e.Kind.String()
}

func (e *EngineError) Unwrap() error { return e.cause }
func (e *EngineError) Cause() error  { return e.cause }

func newErr(kind ErrKind, fatal bool, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Fatal: fatal, cause: errors.Errorf(format, args...)}
}

func NewErrResourceExhausted(what string) *EngineError {
	return newErr(ErrResourceExhausted, false, "buffer pool exhausted: %s", what)
}

func NewErrCannotOpenSource(originID uint64, cause error) *EngineError {
	return &EngineError{Kind: ErrCannotOpenSource, cause: errors.Wrapf(cause, "cannot open source origin=%d", originID)}
}

func NewErrCannotOpenSink(name string, cause error) *EngineError {
	return &EngineError{Kind: ErrCannotOpenSink, cause: errors.Wrapf(cause, "cannot open sink %q", name)}
}

func NewErrPipelineExecutionFailed(pipelineID uint64, cause error) *EngineError {
	return &EngineError{Kind: ErrPipelineExecutionFailed, cause: errors.Wrapf(cause, "pipeline %d execution failed", pipelineID)}
}

// NewErrInvalidSequence reports two distinct buffers sharing (origin, sequence,
// chunk); §7 treats this as a fatal bug.
func NewErrInvalidSequence(originID, seq, chunk uint64) *EngineError {
	return newErr(ErrInvalidSequence, true, "duplicate (origin=%d, sequence=%d, chunk=%d)", originID, seq, chunk)
}

// NewErrDeadlineExceeded reports a stop/fail wait exceeding the termination
// timeout; §7 treats this as a fatal assertion.
func NewErrDeadlineExceeded(op string) *EngineError {
	return newErr(ErrDeadlineExceeded, true, "%s exceeded termination deadline", op)
}

func NewErrConfiguration(format string, args ...any) *EngineError {
	return newErr(ErrConfigurationError, false, format, args...)
}

// IsFatal reports whether err (or a wrapped *EngineError within it) demands process
// abort per §7.
func IsFatal(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Fatal
	}
	return false
}
