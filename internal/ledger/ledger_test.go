package ledger

import (
	"testing"
	"time"

	"github.com/bestruirui/tollfree/internal/telemetry"
)

func TestLedger_CheckRejectsOverCap(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	l := New(WithClock(func() time.Time { return now }), WithDailyCap(1.00), WithMonthlyCap(50.00))
	l.Record(0.95)

	if err := l.Check(0.10); err == nil {
		t.Fatalf("expected spending cap rejection")
	}
	if got := l.Status().DailyAmount; got != 0.95 {
		t.Fatalf("daily amount changed on rejected check, got %v", got)
	}

	l.Record(0.04)
	if got := l.Status().DailyAmount; got != 0.99 {
		t.Fatalf("got %v, want 0.99", got)
	}

	if err := l.Check(0.005); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	l.Record(0.005)
	if got := l.Status().DailyAmount; got != 0.995 {
		t.Fatalf("got %v, want 0.995", got)
	}
}

func TestLedger_ResetAtMidnightDoesNotLoseIncrement(t *testing.T) {
	day1 := time.Date(2026, 1, 15, 23, 59, 0, 0, time.UTC)
	cur := day1
	clock := func() time.Time { return cur }

	l := New(WithClock(clock), WithDailyCap(10.00), WithMonthlyCap(100.00))
	l.Record(5.00)
	if got := l.Status().DailyAmount; got != 5.00 {
		t.Fatalf("got %v, want 5.00", got)
	}

	cur = day1.Add(2 * time.Hour) // crosses midnight
	l.Record(1.00)
	if got := l.Status().DailyAmount; got != 1.00 {
		t.Fatalf("expected reset to exactly the incoming cost, got %v", got)
	}
}

func TestLedger_MonthlyCapIndependentOfDaily(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	l := New(WithClock(func() time.Time { return now }), WithDailyCap(100.00), WithMonthlyCap(1.00))

	if err := l.Check(2.00); err == nil {
		t.Fatalf("expected monthly cap rejection")
	}
}

func TestLedger_WarningFiresOncePerWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	var fired []telemetry.Event
	l := New(
		WithClock(func() time.Time { return now }),
		WithDailyCap(1.00),
		WithMonthlyCap(100.00),
		WithWarnAtPercent(80),
		WithWarnHook(func(e telemetry.Event) { fired = append(fired, e) }),
	)

	l.Record(0.85) // crosses 80% of daily cap
	l.Record(0.01) // still over threshold, must not re-fire

	count := 0
	for _, e := range fired {
		if e.Type == telemetry.EventSpendingWarning && e.Window == WindowDaily {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("got %d daily warnings, want 1", count)
	}
}
