package services

import (
	"context"
	"errors"

	"harthio_ai_gateway/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageLedgerServiceDB defines the persistence of the append-only usage ledger
type UsageLedgerServiceDB interface {
	SaveEntryToDB(ctx context.Context, entry *models.UsageLedgerEntry, day string) error
	GetEntriesBySessionFromDB(ctx context.Context, callerID, sessionID string) ([]models.UsageLedgerEntry, error)
	GetEntriesByExchangeFromDB(ctx context.Context, exchangeID string) ([]models.UsageLedgerEntry, error)
	GetUsageCounterFromDB(ctx context.Context, callerID, day string) (*models.UsageCounter, error)
}

// DefaultUsageLedgerService implements UsageLedgerServiceDB
type DefaultUsageLedgerService struct {
	db *gorm.DB
}

func NewUsageLedgerServiceDB(db *gorm.DB) UsageLedgerServiceDB {
	return &DefaultUsageLedgerService{db: db}
}

// SaveEntryToDB appends the entry and folds it into the caller's daily counter
func (s *DefaultUsageLedgerService) SaveEntryToDB(ctx context.Context, entry *models.UsageLedgerEntry, day string) error {
	counter := models.UsageCounter{
		CallerID: entry.CallerID,
		Day:      day,
		Tokens:   entry.TokenCount,
		CostUSD:  entry.CostUSD,
	}
	if entry.Role == RoleUser {
		counter.Messages = 1
	}
	if entry.APIError != "" {
		counter.ErrorCount = 1
	}
	if entry.Cached {
		counter.CachedCount = 1
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "caller_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"messages":     gorm.Expr("usage_counters.messages + ?", counter.Messages),
				"tokens":       gorm.Expr("usage_counters.tokens + ?", counter.Tokens),
				"cost_usd":     gorm.Expr("usage_counters.cost_usd + ?", counter.CostUSD),
				"error_count":  gorm.Expr("usage_counters.error_count + ?", counter.ErrorCount),
				"cached_count": gorm.Expr("usage_counters.cached_count + ?", counter.CachedCount),
				"updated_at":   gorm.Expr("?", entry.CreatedAt),
			}),
		}).Create(&counter).Error
	})
}

func (s *DefaultUsageLedgerService) GetEntriesBySessionFromDB(ctx context.Context, callerID, sessionID string) ([]models.UsageLedgerEntry, error) {
	var entries []models.UsageLedgerEntry
	result := s.db.WithContext(ctx).
		Where("caller_id = ? AND session_id = ?", callerID, sessionID).
		Order("created_at asc").
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *DefaultUsageLedgerService) GetEntriesByExchangeFromDB(ctx context.Context, exchangeID string) ([]models.UsageLedgerEntry, error) {
	var entries []models.UsageLedgerEntry
	result := s.db.WithContext(ctx).
		Where("exchange_id = ?", exchangeID).
		Order("created_at asc").
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *DefaultUsageLedgerService) GetUsageCounterFromDB(ctx context.Context, callerID, day string) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := s.db.WithContext(ctx).Where("caller_id = ? AND day = ?", callerID, day).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UsageCounter{CallerID: callerID, Day: day}, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}
