package models

import (
	"time"
)

type UsageLedgerEntry struct {
	ID               string `gorm:"primaryKey;size:64"`
	ExchangeID       string `gorm:"size:64;index"`
	CallerID         string `gorm:"size:128;index;not null"`
	SessionID        string `gorm:"size:128;index"`
	Role             string `gorm:"size:16;not null"`
	Content          string `gorm:"type:text"`
	ResponseTimeMs   int64
	PromptTokens     int
	CompletionTokens int
	TokenCount       int
	ProviderID       string `gorm:"size:32"`
	Model            string `gorm:"size:128"`
	CostUSD          float64
	Cached           bool
	APIError         string    `gorm:"type:text"`
	Sentiment        string    `gorm:"size:16"`
	CrisisLevel      string    `gorm:"size:16;index"`
	Topics           string    `gorm:"size:512"`
	InterventionType string    `gorm:"size:32"`
	CreatedAt        time.Time `gorm:"index"`
}

// UsageCounter aggregates ledger activity per caller per day.
type UsageCounter struct {
	CallerID    string `gorm:"primaryKey;size:128"`
	Day         string `gorm:"primaryKey;size:10"`
	Messages    int    `gorm:"not null;default:0"`
	Tokens      int    `gorm:"not null;default:0"`
	CostUSD     float64
	ErrorCount  int `gorm:"not null;default:0"`
	CachedCount int `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}
