package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
	ErrApplicationNotFound = errors.New("application not found")
	ErrRunNotFound         = errors.New("run not found")
	ErrRunInProgress       = errors.New("pipeline run already in progress")

	// ErrClassificationUnavailable covers every way a classifier call can fail
	// to produce an extraction. Callers treat it as "could not classify".
	ErrClassificationUnavailable = errors.New("classification unavailable")
	ErrMalformedResponse         = fmt.Errorf("malformed classifier response: %w", ErrClassificationUnavailable)
	ErrAlreadyClassified         = errors.New("email record already classified")

	ErrDuplicateEmail      = errors.New("email already persisted")
	ErrConstraintViolation = errors.New("store constraint violation")
	ErrFatalStore          = errors.New("fatal store failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
