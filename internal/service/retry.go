package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"house-finance/internal/ingest"
)

// RetryPolicy bounds retries of one external call.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// retry runs fn until it succeeds, the attempts are spent or ctx ends.
// Validation errors are permanent and returned at once.
func retry(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, op string, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ingest.ErrValidation) || ctx.Err() != nil || attempt == attempts {
			break
		}
		logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", policy.Delay).Msg("retrying")

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
