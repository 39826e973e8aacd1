package models

import (
	"time"
)

// User is the billing-owned tier profile of a caller. The gateway only reads it.
type User struct {
	ID               string `gorm:"primaryKey;size:128"`
	Tier             string `gorm:"size:16;not null;default:free"`
	IsTrial          bool
	TrialEndsAt      *time.Time
	StripeCustomerID string `gorm:"size:64;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
