package translate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the model while the breaker is open.
var ErrCircuitOpen = errors.New("translation service unavailable")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed passes every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down has elapsed.
	BreakerOpen
	// BreakerHalfOpen lets a single probe call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a Breaker trips and when it probes again.
type BreakerConfig struct {
	// Threshold is the number of consecutive service failures that opens the breaker.
	Threshold int
	// CoolDown is how long the breaker stays open before a probe.
	CoolDown time.Duration
}

// DefaultBreakerConfig trips after 5 failures and probes after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, CoolDown: 30 * time.Second}
}

// Breaker wraps a Translator so that an unreachable model fails fast instead of making
// every question wait out the retry budget.
type Breaker struct {
	next      Translator
	threshold int
	coolDown  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

var _ Translator = (*Breaker)(nil)

// NewBreaker wraps next.
func NewBreaker(next Translator, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultBreakerConfig().CoolDown
	}
	return &Breaker{
		next:      next,
		threshold: cfg.Threshold,
		coolDown:  cfg.CoolDown,
		now:       time.Now,
		logger:    logger.Named("translate-breaker"),
	}
}

// Translate forwards to the wrapped translator unless the breaker is open.
func (b *Breaker) Translate(ctx context.Context, question string) (string, error) {
	if err := b.allow(); err != nil {
		return "", err
	}

	skeleton, err := b.next.Translate(ctx, question)
	switch {
	case err == nil:
		b.recordSuccess()
	case countsAsOutage(err):
		b.recordFailure()
	default:
		// The service answered; the answer was unusable.
		b.recordSuccess()
	}
	return skeleton, err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.coolDown {
			return fmt.Errorf("%w: %d consecutive failures", ErrCircuitOpen, b.failures)
		}
		b.state = BreakerHalfOpen
		return nil
	case BreakerHalfOpen:
		return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerClosed {
		b.logger.Info("Translation service recovered")
	}
	b.failures = 0
	b.state = BreakerClosed
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		if b.state != BreakerOpen {
			b.logger.Warn("Translation service unavailable, failing fast",
				zap.Int("consecutive_failures", b.failures),
				zap.Duration("cool_down", b.coolDown))
		}
		b.state = BreakerOpen
	}
}

// countsAsOutage reports whether err means the service itself is unhealthy. Cancelled
// requests and unusable output do not count.
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Type != ErrorTypeOutput
	}
	return true
}
