package types

import (
	"errors"
	"fmt"
)

// PermanentError marks a job failure that cannot succeed on retry, such as a
// document with no extractable text. The worker marks the job failed
// immediately instead of scheduling a redelivery.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return e.Reason
}

// Permanentf builds a PermanentError with a formatted reason.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Reason: fmt.Sprintf(format, args...)}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
