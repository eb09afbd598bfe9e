package cli

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/config"
	"github.com/roach88/witsync/internal/engine"
)

// attemptFunc runs one full session attempt and reports the commit phase
// it reached.
type attemptFunc func(ctx context.Context) (engine.Phase, error)

// withRetry runs attempt until it succeeds, fails permanently or the
// configured attempts are used up. It returns the number of attempts made.
//
// Only temporary transport failures that happen before anything was
// submitted are retried. Once a phase has been sent, a second attempt could
// create work items twice.
func withRetry(ctx context.Context, rc config.RetryConfig, logger *zap.Logger, attempt attemptFunc) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialInterval
	b.MaxInterval = rc.MaxInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if rc.Attempts > 0 {
		policy = backoff.WithMaxRetries(b, uint64(rc.Attempts-1))
	}

	attempts := 0
	op := func() error {
		attempts++
		phase, err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err, phase) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	return attempts, err
}

// temporary is implemented by transport errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

func retryable(err error, phase engine.Phase) bool {
	if phase != engine.PhaseNotStarted || engine.IsCancelled(err) || engine.IsValidationError(err) {
		return false
	}
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}
