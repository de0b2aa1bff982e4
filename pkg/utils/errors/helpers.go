package errors

import "errors"

// FromError converts any error to Errno.
// A wrapped Errno anywhere in the chain is unwrapped and returned.
// Anything else becomes ErrInternal with the original as cause.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode checks if the error carries the given service code.
func IsCode(err error, code int) bool {
	var e *Errno
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode returns the service code from an error.
// Returns -1 if no Errno is found in the chain.
func GetCode(err error) int {
	var e *Errno
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}
