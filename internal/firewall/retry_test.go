package firewall

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	return cfg
}

func TestRetryExecutor_LockContention(t *testing.T) {
	count := 0
	next := ExecutorFunc(func(context.Context, string) error {
		count++
		if count < 3 {
			return &ExecError{Binary: "iptables", Command: "-F", ExitCode: 4, Err: errors.New("resource temporarily unavailable")}
		}
		return nil
	})

	r := &RetryExecutor{Next: next, Config: fastRetry()}
	if err := r.Execute(context.Background(), "-F"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 attempts, got %d", count)
	}
}

func TestRetryExecutor_NonRetryable(t *testing.T) {
	count := 0
	next := ExecutorFunc(func(context.Context, string) error {
		count++
		return &ExecError{Binary: "iptables", Command: "-F", ExitCode: 2, Err: errors.New("bad argument")}
	})

	r := &RetryExecutor{Next: next, Config: fastRetry()}
	if err := r.Execute(context.Background(), "-F"); err == nil {
		t.Error("expected error")
	}
	if count != 1 {
		t.Errorf("expected 1 attempt, got %d", count)
	}
}

func TestRetry_FailMaxAttempts(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxAttempts = 3
	cfg.Retryable = nil

	expected := errors.New("permanent error")
	count := 0
	err := Retry(context.Background(), cfg, func() error {
		count++
		return expected
	})

	if !errors.Is(err, expected) {
		t.Errorf("expected error %v, got %v", expected, err)
	}
	if count != 3 {
		t.Errorf("expected 3 attempts, got %d", count)
	}
}

func TestRetry_ContextCancel(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.Retryable = nil
	cfg.InitialDelay = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled, got %v", err)
	}
}
