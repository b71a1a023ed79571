package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
	ErrUnroutable       = errors.New("no tenant for filename prefix")
	ErrDuplicate        = errors.New("fingerprint already claimed")
	ErrKeyConflict      = errors.New("storage key already taken")
	ErrNeverStabilized  = errors.New("file did not stabilize within timeout")
	ErrRetriesExhausted = errors.New("retry budget exhausted")
	ErrNoProviderMatch  = errors.New("no provider matched")
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
