package submission

import (
	"errors"
	"fmt"
)

// ErrTransient and ErrPermanent classify attempt failures. Transient failures
// are retried under the backoff schedule; permanent ones end the submission.
var (
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// PayloadBuildError reports that a normalized record could not be turned into
// a payment payload. It is permanent: nothing about a retry would change it.
type PayloadBuildError struct {
	Price string
	Err   error
}

func (e *PayloadBuildError) Error() string {
	return fmt.Sprintf("build payload: price %q: %v", e.Price, e.Err)
}

func (e *PayloadBuildError) Unwrap() error { return e.Err }

// Is reports PayloadBuildError as permanent.
func (e *PayloadBuildError) Is(target error) bool { return target == ErrPermanent }
