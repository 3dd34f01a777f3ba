package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers test with errors.Is; concrete error types below
// match their sentinel through Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrRecordTooLarge    = errors.New("record exceeds memory budget")
	ErrCapacityExceeded  = errors.New("memory capacity exceeded")
	ErrSuperseded        = errors.New("write superseded by a later write")
	ErrInferenceTimeout  = errors.New("inference timed out")
	ErrInvalidOutput     = errors.New("invalid inference output")
	ErrBudgetExhausted   = errors.New("inference budget exhausted")
	ErrUnregisteredAgent = errors.New("agent not registered")
	ErrDuplicateAgent    = errors.New("agent already registered")
	ErrInvalidAgentSpec  = errors.New("invalid agent spec")
	ErrMalformedNode     = errors.New("malformed composition node")
	ErrUnknownCapability = errors.New("no graph registered for capability")
	ErrSequenceCollision = errors.New("a2a sequence collision")
	ErrIllegalTransition = errors.New("illegal run state transition")
	ErrUndeclaredWrite   = errors.New("agent wrote an undeclared category")
)

// Kind is the error taxonomy used to decide how a failure propagates.
type Kind int

const (
	// KindNone is returned for a nil error.
	KindNone Kind = iota
	// KindTransient covers timeouts and tool/provider failures. Retried locally
	// and then surfaced as a degraded result.
	KindTransient
	// KindValidation covers outputs rejected by a validator or stop predicate.
	KindValidation
	// KindCapacity covers memory budget violations. The write is rejected.
	KindCapacity
	// KindFatal covers programming-contract violations. The run aborts.
	KindFatal
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var fatalSentinels = []error{
	ErrUnregisteredAgent,
	ErrDuplicateAgent,
	ErrInvalidAgentSpec,
	ErrMalformedNode,
	ErrUnknownCapability,
	ErrSequenceCollision,
	ErrIllegalTransition,
	ErrUndeclaredWrite,
}

// Classify maps an error onto the taxonomy. Unrecognized errors are treated as
// transient.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var fe *FatalError
	if errors.As(err, &fe) {
		return KindFatal
	}

	for _, sentinel := range fatalSentinels {
		if errors.Is(err, sentinel) {
			return KindFatal
		}
	}

	switch {
	case errors.Is(err, ErrInvalidOutput):
		return KindValidation
	case errors.Is(err, ErrRecordTooLarge), errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrBudgetExhausted):
		return KindCapacity
	default:
		return KindTransient
	}
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool { return Classify(err) == KindFatal }

// IsCancellation reports whether err stems from context cancellation rather
// than a deadline.
func IsCancellation(err error) bool { return errors.Is(err, context.Canceled) }

// FatalError marks an arbitrary error as a contract violation.
type FatalError struct {
	Op  string
	Err error
}

// Fatal wraps err as a FatalError raised by op.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// InvalidOutputError carries inference output that failed validation. The raw
// text is kept so the caller (usually a Loop stop predicate) can judge it.
type InvalidOutputError struct {
	Raw     string
	Reasons []string
}

func (e *InvalidOutputError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrInvalidOutput.Error()
	}
	return ErrInvalidOutput.Error() + ": " + strings.Join(e.Reasons, "; ")
}

// Is matches ErrInvalidOutput.
func (e *InvalidOutputError) Is(target error) bool { return target == ErrInvalidOutput }

// SupersededError is returned to a writer whose write lost to a later write
// (or to a concurrent update when a version precondition was given).
type SupersededError struct {
	Key     RecordKey
	Current MemoryRecord
}

func (e *SupersededError) Error() string {
	return fmt.Sprintf("%s: %s (current version %d)", ErrSuperseded, e.Key, e.Current.Version)
}

// Is matches ErrSuperseded.
func (e *SupersededError) Is(target error) bool { return target == ErrSuperseded }
