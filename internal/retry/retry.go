// Package retry wraps read-path queries in exponential backoff. Writes
// that could double-submit must not go through here.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     uint64
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	MaxTotalTimeout time.Duration
}

// DefaultConfig returns three attempts starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		MaxTotalTimeout: 10 * time.Second,
	}
}

// Do runs op until it succeeds, returns an error listed in permanent (or
// wrapped by Permanent), runs out of attempts, or ctx is done.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error), permanent ...error) (T, error) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.MaxElapsedTime = cfg.MaxTotalTimeout

	b := backoff.WithContext(backoff.WithMaxRetries(eb, cfg.MaxAttempts-1), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		for _, p := range permanent {
			if errors.Is(err, p) {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}, b, func(err error, next time.Duration) {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_delay", next).
			Msg("retrying query")
	})
}

// Permanent marks err so Do stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
