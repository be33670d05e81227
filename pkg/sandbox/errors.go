package sandbox

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a sandbox execution failure.
type Kind string

const (
	// EntryPointMissing: the code does not define the run_skill entry point.
	EntryPointMissing Kind = "entry_point_missing"
	// CapabilityViolation: the code reached for a module outside the allow-list.
	CapabilityViolation Kind = "capability_violation"
	// ExecutionTimeout: the wall-clock deadline expired mid-execution.
	ExecutionTimeout Kind = "execution_timeout"
	// RuntimeError: the executed code raised a fault (caught, never propagated
	// as a host fault).
	RuntimeError Kind = "runtime_error"
	// UnserializableOutput: the result cannot be represented as plain
	// primitives, sequences, and string-keyed mappings.
	UnserializableOutput Kind = "unserializable_output"
)

// Error is a structured execution failure. Every failure mode of the sandbox
// is reported as an *Error; untrusted code can never crash the host.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is a sandbox error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
