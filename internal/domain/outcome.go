package domain

import (
	"errors"
	"fmt"
)

// ErrorClass tells the retry machinery whether a failure may succeed later.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassPermanent
)

// String returns a human-readable representation of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// SendError is a classified delivery failure.
type SendError struct {
	StatusCode int
	Class      ErrorClass
	Body       string
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("send %s: %v", e.Class, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Class, e.Body)
	}
	return fmt.Sprintf("server returned %d (%s)", e.StatusCode, e.Class)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrTransient and ErrPermanent against the class.
func (e *SendError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Class == ClassTransient
	case ErrPermanent:
		return e.Class == ClassPermanent
	}
	return false
}

// Retryable reports whether the failure should be buffered for another attempt.
func (e *SendError) Retryable() bool {
	return e.Class == ClassTransient
}

// Outcome is the verdict of one retransmission attempt.
type Outcome int

const (
	// OutcomeSuccess removes the stored batch.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry returns the stored batch to the queue.
	OutcomeRetry
	// OutcomePermanent drops the stored batch; it will never be accepted.
	OutcomePermanent
	// OutcomeAbandon unlocks the stored batch without consuming an attempt.
	OutcomeAbandon
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomePermanent:
		return "permanent"
	case OutcomeAbandon:
		return "abandon"
	default:
		return "unknown"
	}
}

// OutcomeOf maps a send result to a retransmission outcome.
// Unclassified errors are treated as transient.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var se *SendError
	if errors.As(err, &se) && !se.Retryable() {
		return OutcomePermanent
	}
	return OutcomeRetry
}
