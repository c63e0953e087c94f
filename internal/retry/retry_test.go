package retry

import (
	"testing"
	"time"

	"github.com/bestruirui/tollfree/internal/errs"
)

func TestPolicy_ShouldRetry_RespectsMaxAttempts(t *testing.T) {
	p := New(3, time.Millisecond, time.Second)
	e := errs.Network("boom")

	if !p.ShouldRetry(e, 1) {
		t.Fatalf("expected retry on attempt 1")
	}
	if !p.ShouldRetry(e, 2) {
		t.Fatalf("expected retry on attempt 2")
	}
	if p.ShouldRetry(e, 3) {
		t.Fatalf("expected no retry once attempt number reaches max attempts")
	}
}

func TestPolicy_ShouldRetry_HonorsExplicitOverride(t *testing.T) {
	p := New(3, time.Millisecond, time.Second)
	e := errs.Network("boom").WithRetryable(false)

	if p.ShouldRetry(e, 1) {
		t.Fatalf("expected explicit override to suppress retry")
	}
}

func TestPolicy_ShouldRetry_ClassifiesByKindAndStatus(t *testing.T) {
	p := New(5, time.Millisecond, time.Second)

	cases := []struct {
		name string
		err  *errs.Error
		want bool
	}{
		{"network", errs.Network("x"), true},
		{"rate_limit", errs.RateLimit("m", "x", nil), true},
		{"upstream_5xx", errs.Upstream("m", 503, "x"), true},
		{"upstream_4xx", errs.Upstream("m", 400, "x"), false},
		{"circuit_open", errs.CircuitOpen("m", time.Now()), false},
		{"abort", errs.Abort("x"), false},
		{"configuration", errs.Configuration("x"), false},
		{"invalid_request", errs.InvalidRequest("x"), false},
		{"spending_cap", errs.SpendingCap("daily", 1, 1), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := p.ShouldRetry(c.err, 1); got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestPolicy_Delay_WithinJitterBounds(t *testing.T) {
	base := 1000 * time.Millisecond
	maxDelay := 30 * time.Second
	p := New(3, base, maxDelay)

	for attempt := 1; attempt <= 3; attempt++ {
		nominal := float64(base) * pow2(attempt-1)
		lower := time.Duration(0.7 * nominal)
		upper := time.Duration(1.3 * nominal)
		if upper > maxDelay {
			upper = maxDelay
		}

		for _, r := range []float64{0, 0.25, 0.5, 0.75, 1} {
			p.Rand = func() float64 { return r }
			d := p.Delay(attempt)
			if d < lower || d > upper {
				t.Fatalf("attempt %d rand %.2f: delay %v outside [%v, %v]", attempt, r, d, lower, upper)
			}
		}
	}
}

func TestPolicy_Delay_CapsAtMaxDelay(t *testing.T) {
	p := New(10, time.Second, 5*time.Second)
	p.Rand = func() float64 { return 1 } // maximal jitter
	d := p.Delay(10)
	if d > 5*time.Second {
		t.Fatalf("delay %v exceeds max delay", d)
	}
}

func TestSleep_Cancellation(t *testing.T) {
	done := make(chan struct{})
	close(done)
	if Sleep(time.Hour, done) {
		t.Fatalf("expected Sleep to observe cancellation immediately")
	}
}

func TestSleep_CompletesWithoutCancellation(t *testing.T) {
	done := make(chan struct{})
	if !Sleep(time.Millisecond, done) {
		t.Fatalf("expected Sleep to complete normally")
	}
}
