// Package retry implements retryability decisions and jittered
// exponential backoff for Upstream Call attempts. The policy is pure: all
// randomness and time are injected so tests can be deterministic.
package retry

import (
	"math/rand"
	"time"

	"github.com/bestruirui/tollfree/internal/errs"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1000 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
	jitterFraction     = 0.3
)

// Policy decides whether an attempt should be retried and how long to
// wait before the next one.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Rand is the jitter source; defaults to a package-local generator.
	// Tests may inject a deterministic one.
	Rand func() float64
}

func New(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Rand:        rand.Float64,
	}
}

func Default() *Policy {
	return New(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay)
}

// ShouldRetry decides retryability for an attempt that already failed
// with err on the given 1-based attempt number.
func (p *Policy) ShouldRetry(err *errs.Error, attemptNumber int) bool {
	if attemptNumber >= p.MaxAttempts {
		return false
	}
	return err.Retryable()
}

// Delay computes the backoff for the given 1-based attempt number:
// base * 2^(attempt-1), plus uniform jitter in [-30%, +30%], capped at
// MaxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	nominal := float64(base) * pow2(shift)

	jitter := 1 + (p.randFloat()*2-1)*jitterFraction
	delay := time.Duration(nominal * jitter)

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (p *Policy) randFloat() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64()
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// Sleep waits for the attempt's backoff delay, honoring cancellation via
// done; it returns false if cancellation fired first.
func Sleep(delay time.Duration, done <-chan struct{}) bool {
	if delay <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
