package queue

import "errors"

// ErrNoHandler is reported when an envelope names a handler that was never registered.
var ErrNoHandler = errors.New("no handler registered")

type permanentError struct {
	err error
}

// Permanent marks err as not worth retrying. The queue reports it to the
// exhaustion hook straight away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
