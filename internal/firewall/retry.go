package firewall

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrLocked matches executor failures caused by another process holding the
// xtables lock (iptables exit status 4).
var ErrLocked = errors.New("xtables lock held by another process")

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	// Retryable errors; nil retries every error.
	Retryable []error
}

// DefaultRetryConfig retries lock contention a few times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		Retryable:     []error{ErrLocked},
	}
}

// Retry executes fn with exponential backoff.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err, cfg.Retryable) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(calculateDelay(attempt, cfg)):
		}
	}

	return lastErr
}

func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if cfg.Jitter {
		// up to 25%
		delay += delay * 0.25 * rand.Float64()
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func isRetryable(err error, retryable []error) bool {
	if len(retryable) == 0 {
		return true
	}
	for _, r := range retryable {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// RetryExecutor re-issues a command when the wrapped executor fails with a
// retryable error. Commands are appends, so only failures that leave the
// table untouched (lock contention) should be retried.
type RetryExecutor struct {
	Next   Executor
	Config RetryConfig
}

// NewRetryExecutor wraps next with DefaultRetryConfig.
func NewRetryExecutor(next Executor) *RetryExecutor {
	return &RetryExecutor{Next: next, Config: DefaultRetryConfig()}
}

// Execute implements Executor.
func (r *RetryExecutor) Execute(ctx context.Context, command string) error {
	return Retry(ctx, r.Config, func() error {
		return r.Next.Execute(ctx, command)
	})
}
