// Package breaker implements the per-model circuit breaker: a
// closed/open/half-open state machine isolating repeated upstream failures
// so a struggling provider stops being hammered by the fanout router.
package breaker

import (
	"sync"
	"time"

	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/utils/cache"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetDuration    = 60 * time.Second
)

type state struct {
	mu                  sync.Mutex
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker holds one state record per model_id behind a sharded cache, so
// lookups for unrelated models never contend.
type Breaker struct {
	states           cache.Cache[string, *state]
	failureThreshold int
	resetDuration    time.Duration
	now              func() time.Time
}

// Option configures a Breaker at construction time.
type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

func WithResetDuration(d time.Duration) Option {
	return func(b *Breaker) { b.resetDuration = d }
}

// WithClock injects a virtual clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func New(opts ...Option) *Breaker {
	b := &Breaker{
		states:           cache.New[string, *state](16),
		failureThreshold: DefaultFailureThreshold,
		resetDuration:    DefaultResetDuration,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) entry(model string) *state {
	if s, ok := b.states.Get(model); ok {
		return s
	}
	s := &state{}
	b.states.Set(model, s)
	return s
}

// IsOpen reports whether calls to model are currently rejected. A model in
// the open state past its reset window is observed as half-open here (not
// rejected) but the underlying record is left untouched until the next
// success/failure resolves it.
func (b *Breaker) IsOpen(model string) bool {
	s := b.entry(model)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openedAt.IsZero() {
		return false
	}
	if b.now().Sub(s.openedAt) > b.resetDuration {
		return false // half-open: queries pass until a success or failure resolves it
	}
	return true
}

// ResetTime returns the instant the breaker will move to half-open, or
// nil if the model is not currently open.
func (b *Breaker) ResetTime(model string) *time.Time {
	s := b.entry(model)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openedAt.IsZero() {
		return nil
	}
	if b.now().Sub(s.openedAt) > b.resetDuration {
		return nil // half-open, not open
	}
	t := s.openedAt.Add(b.resetDuration)
	return &t
}

// RecordSuccess closes the circuit and deletes the failure count.
// Idempotent: calling it repeatedly always yields the closed state.
func (b *Breaker) RecordSuccess(model string) {
	s := b.entry(model)
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.openedAt = time.Time{}
	s.mu.Unlock()
}

// RecordFailure increments the failure count, opening (or re-opening) the
// circuit once the threshold is reached.
func (b *Breaker) RecordFailure(model string) {
	s := b.entry(model)
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOpen := !s.openedAt.IsZero() && b.now().Sub(s.openedAt) <= b.resetDuration
	halfOpen := !s.openedAt.IsZero() && !wasOpen

	s.consecutiveFailures++
	if halfOpen {
		// half-open probe failed: re-open immediately regardless of count.
		s.openedAt = b.now()
		return
	}
	if s.consecutiveFailures >= b.failureThreshold {
		s.openedAt = b.now()
	}
}

// Guard consults the breaker before a Streaming Client attempt and returns
// a CircuitOpenError when the model must be rejected.
func (b *Breaker) Guard(model string) *errs.Error {
	if !b.IsOpen(model) {
		return nil
	}
	resetAt := b.ResetTime(model)
	var at time.Time
	if resetAt != nil {
		at = *resetAt
	}
	return errs.CircuitOpen(model, at)
}

// CountsAsFailure reports whether an error kind should be recorded
// against the breaker, per the taxonomy's breaker-participation rule.
func CountsAsFailure(e *errs.Error) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case errs.KindRateLimit:
		return true
	case errs.KindUpstream:
		return e.StatusCode >= 500
	case errs.KindNetwork:
		return true
	default:
		return false
	}
}
