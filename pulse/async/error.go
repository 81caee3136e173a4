package async

import (
	"context"

	"github.com/teranos/nightshift/errors"
)

// ErrPolicyViolation marks a live observing constraint breached while a job runs.
var ErrPolicyViolation = errors.New("policy violation")

// Kind is the failure class of an error.
type Kind int

const (
	KindNone Kind = iota
	Transient
	Recoverable
	Fatal
	PolicyViolation
	InputError
	Timeout
)

var kindNames = [...]string{"none", "transient", "recoverable", "fatal", "policy_violation", "input_error", "timeout"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Retryable reports whether the same step may be attempted again.
func (k Kind) Retryable() bool {
	return k == Transient || k == Recoverable || k == Timeout
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, errors.ErrBusy):
		return Transient
	case errors.Is(err, errors.ErrServiceUnavailable), errors.Is(err, errors.ErrRetryExhausted):
		return Fatal
	case errors.Is(err, ErrPolicyViolation):
		return PolicyViolation
	case errors.Is(err, errors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, errors.ErrInvalidRequest), errors.Is(err, errors.ErrNotFound):
		return InputError
	default:
		return Recoverable
	}
}

// ErrorContext provides structured information about a failed step
type ErrorContext struct {
	Stage     string // Where the error occurred
	Kind      Kind   // Error classification
	Message   string // Human-readable message
	Retryable bool   // Can the step be retried?
}

// ClassifyError categorizes an error raised by stage
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Kind: KindNone}
	}
	kind := Classify(err)
	return ErrorContext{
		Stage:     stage,
		Kind:      kind,
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}
}
