package models

import (
	"time"
)

// CreditBalance holds purchased message credits for a caller.
type CreditBalance struct {
	CallerID  string `gorm:"primaryKey;size:128"`
	Balance   int    `gorm:"not null;default:0"`
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// DailyUsage is the free-tier counter, one row per caller per calendar day (YYYY-MM-DD).
type DailyUsage struct {
	CallerID     string `gorm:"primaryKey;size:128"`
	Day          string `gorm:"primaryKey;size:10"`
	MessageCount int    `gorm:"not null;default:0"`
}

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeCommitted ChargeStatus = "committed"
	ChargeReleased  ChargeStatus = "released"
)

// EntitlementCharge is the unit reserved at admission for one exchange.
// ExchangeID is the idempotency key for commit and release.
type EntitlementCharge struct {
	ExchangeID string       `gorm:"primaryKey;size:64"`
	CallerID   string       `gorm:"size:128;index;not null"`
	Source     string       `gorm:"size:16;not null"`
	Day        string       `gorm:"size:10"`
	Status     ChargeStatus `gorm:"size:16;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
