package model

import "time"

// SpendingRecord is one of the two ledger singletons, keyed by Window
// ("daily" or "monthly").
type SpendingRecord struct {
	Window        string    `json:"window" gorm:"primaryKey"`
	AmountUSD     float64   `json:"amount_usd"`
	WindowResetAt time.Time `json:"window_reset_at"`
}
