// Package retry runs calls to external collaborators (coding service, translation model,
// databases) with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, fraction of the delay randomized in either direction
	MaxSameErrorType int     // after N consecutive errors of one type, give up (0 disables)
}

// DefaultConfig returns 3 retries starting at 100ms, doubling up to 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current delay, then grows it. It returns ctx.Err() if the context
// ends first.
func (b *backoff) wait(ctx context.Context) error {
	timer := time.NewTimer(applyJitter(b.delay, b.cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
		b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
		if b.delay > b.cfg.MaxDelay {
			b.delay = b.cfg.MaxDelay
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn until it succeeds or retries run out, returning the last error.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value. The last result is returned even
// on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	b := newBackoff(cfg)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			if err := b.wait(ctx); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own retryability, such as
// translate.Error.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"i/o timeout",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err is transient and worth retrying.
// An error in the chain implementing RetryableError decides; otherwise the message is
// matched against known transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can be detected.
func classifyErrorType(err error) string {
	msg := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429"} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return "rate_limit"
	default:
		return "unknown"
	}
}

// DoIfRetryable retries fn only while it fails with transient errors. Permanent errors are
// returned at once, as is a transient error that repeats cfg.MaxSameErrorType times in a row.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoIfRetryableWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIfRetryableWithResult is DoIfRetryable for functions that return a value.
func DoIfRetryableWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	var lastType string
	sameCount := 0
	b := newBackoff(cfg)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if !IsRetryable(err) {
			return result, err
		}

		errType := classifyErrorType(err)
		if errType == lastType {
			sameCount++
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, err)
			}
		} else {
			sameCount = 1
			lastType = errType
		}

		if attempt < cfg.MaxRetries {
			if err := b.wait(ctx); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}
