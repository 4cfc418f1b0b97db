package oracle

import "errors"

// retryableError marks an oracle failure as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err to mark it as transient. The controller retries
// retryable oracle failures with backoff; everything else fails the run
// immediately.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked transient.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
