package services

import (
	"context"
	"strings"
	"time"

	"harthio_ai_gateway/internal/llm"
	"harthio_ai_gateway/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerEntry is one ledger record as produced by the orchestrator.
type LedgerEntry struct {
	ExchangeID     string
	CallerID       string
	SessionID      string
	Role           string
	Content        string
	ResponseTime   time.Duration
	Usage          llm.Usage
	ProviderID     string
	Model          string
	CostUSD        float64
	Cached         bool
	APIError       string
	Classification *ClassificationResult
}

type UsageLedgerService struct {
	db  UsageLedgerServiceDB
	now func() time.Time
}

func NewUsageLedgerService(db UsageLedgerServiceDB) *UsageLedgerService {
	return &UsageLedgerService{db: db, now: time.Now}
}

// Record appends one entry. Failures are returned so the caller can log them;
// they never change the outcome of the exchange.
func (s *UsageLedgerService) Record(ctx context.Context, e LedgerEntry) error {
	now := s.now().UTC()
	row := &models.UsageLedgerEntry{
		ID:               uuid.NewString(),
		ExchangeID:       e.ExchangeID,
		CallerID:         e.CallerID,
		SessionID:        e.SessionID,
		Role:             e.Role,
		Content:          e.Content,
		ResponseTimeMs:   e.ResponseTime.Milliseconds(),
		PromptTokens:     e.Usage.PromptTokens,
		CompletionTokens: e.Usage.CompletionTokens,
		TokenCount:       e.Usage.TotalTokens,
		ProviderID:       e.ProviderID,
		Model:            e.Model,
		CostUSD:          e.CostUSD,
		Cached:           e.Cached,
		APIError:         e.APIError,
		CreatedAt:        now,
	}
	if e.Classification != nil {
		row.Sentiment = string(e.Classification.Sentiment)
		row.CrisisLevel = e.Classification.CrisisLevel.String()
		row.Topics = strings.Join(e.Classification.Topics, ",")
		row.InterventionType = string(e.Classification.InterventionType)
	}

	if err := s.db.SaveEntryToDB(ctx, row, now.Format("2006-01-02")); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("exchange_id", e.ExchangeID).
			Str("role", e.Role).
			Msg("Failed to write usage ledger entry")
		return err
	}
	return nil
}

func (s *UsageLedgerService) ListBySession(ctx context.Context, callerID, sessionID string) ([]models.UsageLedgerEntry, error) {
	return s.db.GetEntriesBySessionFromDB(ctx, callerID, sessionID)
}

func (s *UsageLedgerService) ListByExchange(ctx context.Context, exchangeID string) ([]models.UsageLedgerEntry, error) {
	return s.db.GetEntriesByExchangeFromDB(ctx, exchangeID)
}

// TodayUsage returns the caller's aggregated counter for the current UTC day.
func (s *UsageLedgerService) TodayUsage(ctx context.Context, callerID string) (*models.UsageCounter, error) {
	return s.db.GetUsageCounterFromDB(ctx, callerID, s.now().UTC().Format("2006-01-02"))
}
