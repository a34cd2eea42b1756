package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a record lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyLinked reports an attempt to overwrite a permit's
	// property reference. Linking is monotonic; the first link wins.
	ErrAlreadyLinked = errors.New("permit already linked")
)

// TransientError wraps a network-level failure (timeout, connection
// refused, 5xx, 429) that is worth retrying up to the configured
// ceiling.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MalformedResponseError wraps an unexpected response shape from a
// remote service. Retrying cannot fix a structural mismatch, so callers
// skip the affected node or batch instead.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a structural mismatch.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// CheckpointCorruptionError reports an unreadable extraction
// checkpoint. It is never fatal: the affected layer restarts from zero.
type CheckpointCorruptionError struct {
	LayerKey string
	Err      error
}

func (e *CheckpointCorruptionError) Error() string {
	return fmt.Sprintf("corrupt checkpoint for layer %s: %v", e.LayerKey, e.Err)
}

func (e *CheckpointCorruptionError) Unwrap() error { return e.Err }
