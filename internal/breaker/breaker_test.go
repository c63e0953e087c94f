package breaker

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(5), WithResetDuration(60*time.Second), WithClock(clock))

	for i := 0; i < 4; i++ {
		b.RecordFailure("m")
		if b.IsOpen("m") {
			t.Fatalf("circuit opened too early at failure %d", i+1)
		}
	}
	b.RecordFailure("m")
	if !b.IsOpen("m") {
		t.Fatalf("expected circuit open after threshold reached")
	}
}

func TestBreaker_RejectsUntilResetElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(1), WithResetDuration(60*time.Second), WithClock(clock))

	b.RecordFailure("m")
	if !b.IsOpen("m") {
		t.Fatalf("expected open immediately after threshold")
	}

	now = now.Add(59 * time.Second)
	if !b.IsOpen("m") {
		t.Fatalf("expected still open before reset window elapses")
	}

	now = now.Add(2 * time.Second) // total 61s elapsed
	if b.IsOpen("m") {
		t.Fatalf("expected half-open (not rejecting) after reset window elapses")
	}
}

func TestBreaker_SuccessClosesAndIsIdempotent(t *testing.T) {
	b := New(WithFailureThreshold(1))
	b.RecordFailure("m")
	if !b.IsOpen("m") {
		t.Fatalf("expected open")
	}
	b.RecordSuccess("m")
	if b.IsOpen("m") {
		t.Fatalf("expected closed after success")
	}
	b.RecordSuccess("m")
	if b.IsOpen("m") {
		t.Fatalf("expected still closed after idempotent second success")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(1), WithResetDuration(60*time.Second), WithClock(clock))

	b.RecordFailure("m")
	now = now.Add(61 * time.Second)
	if b.IsOpen("m") {
		t.Fatalf("expected half-open")
	}
	b.RecordFailure("m") // probe fails
	if !b.IsOpen("m") {
		t.Fatalf("expected reopened after half-open probe failure")
	}
}

func TestBreaker_ModelsAreIsolated(t *testing.T) {
	b := New(WithFailureThreshold(1))
	b.RecordFailure("a")
	if b.IsOpen("b") {
		t.Fatalf("failure on model a must not affect model b")
	}
}
