package gcs

import (
	"context"
	"errors"

	"google.golang.org/api/googleapi"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/infrastructure/resilience"
)

func classifyGCSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	// Network-level failures surface as plain errors; assume transient.
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

// putClassifier never retries in place (the body reader is consumed) but
// still records failures against the breaker.
func putClassifier(err error) resilience.ErrorClassification {
	class := classifyGCSError(err)
	class.Retryable = false
	return class
}

func wrapTemporaryIfNeeded(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrKeyConflict) {
		return err
	}
	class := classifyGCSError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) || isRetryableForScheduler(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}

// isRetryableForScheduler widens the transient net for the task-level
// backoff: a put that could not be retried in place may still succeed on
// the next scheduled attempt.
func isRetryableForScheduler(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
