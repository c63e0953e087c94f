// Package ledger implements the durable daily/monthly spending counters:
// a pre-request check against configured caps, an atomic post-request
// increment, and a status snapshot for the settings API.
package ledger

import (
	"sync"
	"time"

	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/model"
	"github.com/bestruirui/tollfree/internal/telemetry"
	"gorm.io/gorm"
)

const (
	WindowDaily   = "daily"
	WindowMonthly = "monthly"
)

// record is one window's in-memory counter, backed by a model.SpendingRecord row.
type record struct {
	amount  float64
	resetAt time.Time
	warned  bool
}

// nextReset computes the window boundary strictly after now.
func nextReset(window string, now time.Time) time.Time {
	now = now.UTC()
	switch window {
	case WindowMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, 1, 0)
	default:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return midnight.AddDate(0, 0, 1)
	}
}

// Ledger holds both window counters behind a single writer lock, matching
// the durable-counter, atomic-increment contract.
type Ledger struct {
	mu sync.Mutex

	daily   record
	monthly record

	dailyCap      float64
	monthlyCap    float64
	warnAtPercent int

	now func() time.Time
	db  *gorm.DB

	onWarn func(telemetry.Event)
}

type Option func(*Ledger)

func WithDailyCap(v float64) Option {
	return func(l *Ledger) { l.dailyCap = v }
}

func WithMonthlyCap(v float64) Option {
	return func(l *Ledger) { l.monthlyCap = v }
}

func WithWarnAtPercent(p int) Option {
	return func(l *Ledger) { l.warnAtPercent = p }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithDB(db *gorm.DB) Option {
	return func(l *Ledger) { l.db = db }
}

func WithWarnHook(fn func(telemetry.Event)) Option {
	return func(l *Ledger) { l.onWarn = fn }
}

// New constructs a Ledger. If a DB is configured, it loads persisted
// counters, creating the two singleton rows on first run.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		dailyCap:      5.00,
		monthlyCap:    50.00,
		warnAtPercent: 80,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	now := l.now()
	l.daily = record{resetAt: nextReset(WindowDaily, now)}
	l.monthly = record{resetAt: nextReset(WindowMonthly, now)}

	if l.db != nil {
		l.load()
	}
	return l
}

func (l *Ledger) load() {
	for window, rec := range map[string]*record{WindowDaily: &l.daily, WindowMonthly: &l.monthly} {
		var row model.SpendingRecord
		err := l.db.Where("window = ?", window).First(&row).Error
		if err != nil {
			row = model.SpendingRecord{Window: window, AmountUSD: 0, WindowResetAt: rec.resetAt}
			l.db.Create(&row)
			continue
		}
		rec.amount = row.AmountUSD
		rec.resetAt = row.WindowResetAt
	}
}

func (l *Ledger) persist(window string, rec *record) {
	if l.db == nil {
		return
	}
	l.db.Save(&model.SpendingRecord{Window: window, AmountUSD: rec.amount, WindowResetAt: rec.resetAt})
}

// applyReset resets a window's counter in place if its boundary has
// passed. Because this runs under the Ledger's single writer lock, the
// reset and the increment that follows it (in Record) happen atomically:
// amount becomes exactly the incoming cost rather than a stale sum.
func (l *Ledger) applyReset(window string, rec *record, now time.Time) {
	if now.Before(rec.resetAt) {
		return
	}
	rec.amount = 0
	rec.resetAt = nextReset(window, now)
	rec.warned = false
}

// Check reports whether adding cost to both windows would stay within
// their caps, applying any due reset first.
func (l *Ledger) Check(estimatedCost float64) *errs.Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.applyReset(WindowDaily, &l.daily, now)
	l.applyReset(WindowMonthly, &l.monthly, now)

	if l.daily.amount+estimatedCost > l.dailyCap {
		return errs.SpendingCap(WindowDaily, l.daily.amount, l.dailyCap)
	}
	if l.monthly.amount+estimatedCost > l.monthlyCap {
		return errs.SpendingCap(WindowMonthly, l.monthly.amount, l.monthlyCap)
	}
	return nil
}

// Record atomically increments both window counters by actualCost and
// persists the new totals, emitting a one-per-window warning event if
// either counter crosses its warn_at_percent threshold.
func (l *Ledger) Record(actualCost float64) {
	l.mu.Lock()
	now := l.now()
	l.applyReset(WindowDaily, &l.daily, now)
	l.applyReset(WindowMonthly, &l.monthly, now)

	l.daily.amount += actualCost
	l.monthly.amount += actualCost

	warnings := l.checkWarnings()
	l.persist(WindowDaily, &l.daily)
	l.persist(WindowMonthly, &l.monthly)
	l.mu.Unlock()

	if l.onWarn != nil {
		for _, w := range warnings {
			l.onWarn(w)
		}
	}
}

func (l *Ledger) checkWarnings() []telemetry.Event {
	var events []telemetry.Event
	for window, rec := range map[string]*record{WindowDaily: &l.daily, WindowMonthly: &l.monthly} {
		windowCap := l.capFor(window)
		if windowCap <= 0 || rec.warned {
			continue
		}
		pct := rec.amount / windowCap * 100
		if pct >= float64(l.warnAtPercent) {
			rec.warned = true
			events = append(events, telemetry.SpendingWarning(window, pct))
		}
	}
	return events
}

func (l *Ledger) capFor(window string) float64 {
	if window == WindowMonthly {
		return l.monthlyCap
	}
	return l.dailyCap
}

// Status is the settings-API snapshot of both windows.
type Status struct {
	DailyAmount    float64   `json:"daily_amount"`
	DailyCap       float64   `json:"daily_cap"`
	DailyResetAt   time.Time `json:"daily_reset_at"`
	MonthlyAmount  float64   `json:"monthly_amount"`
	MonthlyCap     float64   `json:"monthly_cap"`
	MonthlyResetAt time.Time `json:"monthly_reset_at"`
	WarnAtPercent  int       `json:"warn_at_percent"`
}

func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.applyReset(WindowDaily, &l.daily, now)
	l.applyReset(WindowMonthly, &l.monthly, now)

	return Status{
		DailyAmount:    l.daily.amount,
		DailyCap:       l.dailyCap,
		DailyResetAt:   l.daily.resetAt,
		MonthlyAmount:  l.monthly.amount,
		MonthlyCap:     l.monthlyCap,
		MonthlyResetAt: l.monthly.resetAt,
		WarnAtPercent:  l.warnAtPercent,
	}
}

// SetCaps updates the configured caps, used by POST /api/settings/spending.
func (l *Ledger) SetCaps(dailyCap, monthlyCap *float64, warnAtPercent *int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dailyCap != nil {
		l.dailyCap = *dailyCap
	}
	if monthlyCap != nil {
		l.monthlyCap = *monthlyCap
	}
	if warnAtPercent != nil {
		l.warnAtPercent = *warnAtPercent
	}
}
