package services

import (
	"context"
	"errors"
	"time"

	"harthio_ai_gateway/internal/models"

	"gorm.io/gorm"
)

// EntitlementServiceDB persists credit balances, daily counters and charges.
// Every mutation of a balance or counter is a single conditional UPDATE.
type EntitlementServiceDB interface {
	GetCreditBalance(ctx context.Context, callerID string) (*models.CreditBalance, error)
	GetDailyCount(ctx context.Context, callerID, day string) (int, error)
	ReserveCredit(ctx context.Context, callerID, exchangeID string, now time.Time) (bool, int, time.Time, error)
	ReserveFree(ctx context.Context, callerID, exchangeID, day string, limit int) (bool, int, error)
	CommitCharge(ctx context.Context, exchangeID string) (bool, error)
	ReleaseCharge(ctx context.Context, exchangeID string) (bool, error)
}

// DefaultEntitlementService implements EntitlementServiceDB and TierSource
type DefaultEntitlementService struct {
	db *gorm.DB
}

func NewEntitlementServiceDB(db *gorm.DB) *DefaultEntitlementService {
	return &DefaultEntitlementService{db: db}
}

// GetTier reads the billing-owned tier profile. Unknown callers are free.
func (s *DefaultEntitlementService) GetTier(ctx context.Context, callerID string) (TierInfo, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", callerID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TierInfo{Tier: TierFree}, nil
	}
	if err != nil {
		return TierInfo{}, err
	}
	tier := TierFree
	if Tier(user.Tier) == TierPro {
		tier = TierPro
	}
	return TierInfo{
		Tier:             tier,
		IsTrial:          user.IsTrial,
		TrialEndsAt:      user.TrialEndsAt,
		StripeCustomerID: user.StripeCustomerID,
	}, nil
}

func (s *DefaultEntitlementService) GetCreditBalance(ctx context.Context, callerID string) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := s.db.WithContext(ctx).Where("caller_id = ?", callerID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *DefaultEntitlementService) GetDailyCount(ctx context.Context, callerID, day string) (int, error) {
	var usage models.DailyUsage
	err := s.db.WithContext(ctx).Where("caller_id = ? AND day = ?", callerID, day).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.MessageCount, nil
}

// ReserveCredit debits one credit if the balance is positive and unexpired.
func (s *DefaultEntitlementService) ReserveCredit(ctx context.Context, callerID, exchangeID string, now time.Time) (bool, int, time.Time, error) {
	var reserved bool
	var balance models.CreditBalance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CreditBalance{}).
			Where("caller_id = ? AND balance > 0 AND expires_at > ?", callerID, now).
			Update("balance", gorm.Expr("balance - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		charge := &models.EntitlementCharge{
			ExchangeID: exchangeID,
			CallerID:   callerID,
			Source:     string(SourceCredits),
			Status:     models.ChargePending,
		}
		if err := tx.Create(charge).Error; err != nil {
			return err
		}
		if err := tx.Where("caller_id = ?", callerID).First(&balance).Error; err != nil {
			return err
		}
		reserved = true
		return nil
	})
	if err != nil {
		return false, 0, time.Time{}, err
	}
	return reserved, balance.Balance, balance.ExpiresAt, nil
}

// ReserveFree increments today's counter unless it already reached limit.
func (s *DefaultEntitlementService) ReserveFree(ctx context.Context, callerID, exchangeID, day string, limit int) (bool, int, error) {
	var reserved bool
	var usage models.DailyUsage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"INSERT INTO daily_usages (caller_id, day, message_count) VALUES (?, ?, 0) ON CONFLICT (caller_id, day) DO NOTHING",
			callerID, day,
		).Error; err != nil {
			return err
		}

		res := tx.Model(&models.DailyUsage{}).
			Where("caller_id = ? AND day = ? AND message_count < ?", callerID, day, limit).
			Update("message_count", gorm.Expr("message_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		charge := &models.EntitlementCharge{
			ExchangeID: exchangeID,
			CallerID:   callerID,
			Source:     string(SourceFree),
			Day:        day,
			Status:     models.ChargePending,
		}
		if err := tx.Create(charge).Error; err != nil {
			return err
		}
		if err := tx.Where("caller_id = ? AND day = ?", callerID, day).First(&usage).Error; err != nil {
			return err
		}
		reserved = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return reserved, usage.MessageCount, nil
}

// CommitCharge moves a pending charge to committed. It reports false when
// there was nothing pending, which makes repeated calls harmless.
func (s *DefaultEntitlementService) CommitCharge(ctx context.Context, exchangeID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.EntitlementCharge{}).
		Where("exchange_id = ? AND status = ?", exchangeID, models.ChargePending).
		Update("status", models.ChargeCommitted)
	return res.RowsAffected == 1, res.Error
}

// ReleaseCharge cancels a pending charge and returns the unit to its source.
func (s *DefaultEntitlementService) ReleaseCharge(ctx context.Context, exchangeID string) (bool, error) {
	var released bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EntitlementCharge{}).
			Where("exchange_id = ? AND status = ?", exchangeID, models.ChargePending).
			Update("status", models.ChargeReleased)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var charge models.EntitlementCharge
		if err := tx.Where("exchange_id = ?", exchangeID).First(&charge).Error; err != nil {
			return err
		}
		switch EntitlementSource(charge.Source) {
		case SourceCredits:
			if err := tx.Model(&models.CreditBalance{}).
				Where("caller_id = ?", charge.CallerID).
				Update("balance", gorm.Expr("balance + ?", 1)).Error; err != nil {
				return err
			}
		case SourceFree:
			if err := tx.Model(&models.DailyUsage{}).
				Where("caller_id = ? AND day = ? AND message_count > 0", charge.CallerID, charge.Day).
				Update("message_count", gorm.Expr("message_count - ?", 1)).Error; err != nil {
				return err
			}
		}
		released = true
		return nil
	})
	return released, err
}
