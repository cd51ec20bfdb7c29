package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/meigma/partialzip/internal/ziptype"
)

// retryableError marks a failure that may succeed when repeated.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	return &retryableError{err: err}
}

func asRetryable(err error, target **retryableError) bool {
	return errors.As(err, target)
}

// retry runs fn until it succeeds, fails permanently, or the retry budget is
// spent. Only errors marked retryable are repeated. A retryable error that
// survives every attempt is reported as ziptype.ErrTransport.
func (s *Source) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.minBackoff
	policy.MaxInterval = s.maxBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		var re *retryableError
		if !asRetryable(err, &re) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.retries)), ctx),
		func(err error, wait time.Duration) {
			s.logger.Debug("retrying request",
				"op", op,
				"url", s.url.Redacted(),
				"attempt", attempt,
				"wait", wait,
				"error", err)
		})
	if err == nil {
		return nil
	}

	var re *retryableError
	if asRetryable(err, &re) {
		if errors.Is(re.err, ziptype.ErrTransport) {
			return fmt.Errorf("%w (after %d attempts)", re.err, attempt)
		}
		return fmt.Errorf("%w: %s after %d attempts: %v", ziptype.ErrTransport, op, attempt, re.err)
	}
	return err
}
