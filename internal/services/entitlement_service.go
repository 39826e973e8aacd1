package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

type EntitlementSource string

const (
	SourcePro     EntitlementSource = "pro"
	SourceCredits EntitlementSource = "credits"
	SourceFree    EntitlementSource = "free"
)

// Unlimited is reported as remaining and limit for pro callers.
const Unlimited = -1

const (
	ReasonUnlimitedMode          = "unlimited_mode"
	ReasonQuotaExhausted         = "quota_exhausted"
	ReasonEntitlementUnavailable = "entitlement_unavailable"
)

type EntitlementDecision struct {
	Allowed   bool              `json:"allowed"`
	Remaining int               `json:"remaining"`
	Limit     int               `json:"limit"`
	ResetTime time.Time         `json:"reset_time"`
	Source    EntitlementSource `json:"source"`
	Tier      Tier              `json:"tier"`
	Reason    string            `json:"reason,omitempty"`
}

type TierInfo struct {
	Tier             Tier
	IsTrial          bool
	TrialEndsAt      *time.Time
	StripeCustomerID string
}

// Effective resolves trials: an active trial counts as pro.
func (t TierInfo) Effective(now time.Time) Tier {
	if t.Tier == TierPro {
		return TierPro
	}
	if t.IsTrial && (t.TrialEndsAt == nil || t.TrialEndsAt.After(now)) {
		return TierPro
	}
	return TierFree
}

type TierSource interface {
	GetTier(ctx context.Context, callerID string) (TierInfo, error)
}

// EntitlementService resolves the pro -> credits -> free cascade. Units are
// reserved atomically at admission and committed or released per exchange.
type EntitlementService struct {
	store EntitlementServiceDB
	tiers TierSource
	flags FlagSource
	now   func() time.Time
}

func NewEntitlementService(store EntitlementServiceDB, tiers TierSource, flagSource FlagSource) *EntitlementService {
	return &EntitlementService{
		store: store,
		tiers: tiers,
		flags: flagSource,
		now:   time.Now,
	}
}

// SetClock overrides the time source.
func (s *EntitlementService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *EntitlementService) window() (day string, reset time.Time, limit int, unlimited bool) {
	cfg := s.flags.Current()
	local := s.now().In(cfg.Location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return local.Format("2006-01-02"), midnight.AddDate(0, 0, 1), cfg.FreeDailyLimit, cfg.UnlimitedMode
}

func proDecision(reset time.Time, reason string) EntitlementDecision {
	return EntitlementDecision{
		Allowed:   true,
		Remaining: Unlimited,
		Limit:     Unlimited,
		ResetTime: reset,
		Source:    SourcePro,
		Tier:      TierPro,
		Reason:    reason,
	}
}

func failClosed(ctx context.Context, err error, callerID string, limit int, reset time.Time) EntitlementDecision {
	zerolog.Ctx(ctx).Error().Err(err).Str("caller_id", callerID).Msg("Entitlement lookup failed, denying")
	return EntitlementDecision{
		Allowed:   false,
		Remaining: 0,
		Limit:     limit,
		ResetTime: reset,
		Source:    SourceFree,
		Tier:      TierFree,
		Reason:    ReasonEntitlementUnavailable,
	}
}

// Resolve computes the caller's current entitlement without consuming anything.
func (s *EntitlementService) Resolve(ctx context.Context, callerID string) EntitlementDecision {
	day, reset, limit, unlimited := s.window()
	if unlimited {
		return proDecision(reset, ReasonUnlimitedMode)
	}

	now := s.now()
	info, err := s.tiers.GetTier(ctx, callerID)
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	if info.Effective(now) == TierPro {
		return proDecision(reset, "")
	}

	credits, err := s.store.GetCreditBalance(ctx, callerID)
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	if credits != nil && credits.Balance > 0 && credits.ExpiresAt.After(now) {
		return EntitlementDecision{
			Allowed:   true,
			Remaining: credits.Balance,
			Limit:     credits.Balance,
			ResetTime: credits.ExpiresAt,
			Source:    SourceCredits,
			Tier:      TierFree,
		}
	}

	count, err := s.store.GetDailyCount(ctx, callerID, day)
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	decision := EntitlementDecision{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     limit,
		ResetTime: reset,
		Source:    SourceFree,
		Tier:      TierFree,
	}
	if !decision.Allowed {
		decision.Reason = ReasonQuotaExhausted
	}
	return decision
}

// Admit runs the cascade and reserves one unit for exchangeID. The returned
// remaining count already reflects the reservation.
func (s *EntitlementService) Admit(ctx context.Context, callerID, exchangeID string) EntitlementDecision {
	day, reset, limit, unlimited := s.window()
	if unlimited {
		return proDecision(reset, ReasonUnlimitedMode)
	}

	now := s.now()
	info, err := s.tiers.GetTier(ctx, callerID)
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	if info.Effective(now) == TierPro {
		return proDecision(reset, "")
	}

	reserved, balance, expiresAt, err := s.store.ReserveCredit(ctx, callerID, exchangeID, now.UTC())
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	if reserved {
		return EntitlementDecision{
			Allowed:   true,
			Remaining: balance,
			Limit:     balance + 1,
			ResetTime: expiresAt,
			Source:    SourceCredits,
			Tier:      TierFree,
		}
	}

	reserved, count, err := s.store.ReserveFree(ctx, callerID, exchangeID, day, limit)
	if err != nil {
		return failClosed(ctx, err, callerID, limit, reset)
	}
	if !reserved {
		return EntitlementDecision{
			Allowed:   false,
			Remaining: 0,
			Limit:     limit,
			ResetTime: reset,
			Source:    SourceFree,
			Tier:      TierFree,
			Reason:    ReasonQuotaExhausted,
		}
	}
	return EntitlementDecision{
		Allowed:   true,
		Remaining: limit - count,
		Limit:     limit,
		ResetTime: reset,
		Source:    SourceFree,
		Tier:      TierFree,
	}
}

// Charge finalizes the unit reserved for exchangeID. Calling it again, or for
// an exchange that reserved nothing (pro, unlimited mode), is a no-op.
func (s *EntitlementService) Charge(ctx context.Context, callerID, exchangeID string) error {
	committed, err := s.store.CommitCharge(ctx, exchangeID)
	if err != nil {
		return err
	}
	if committed {
		zerolog.Ctx(ctx).Debug().Str("caller_id", callerID).Str("exchange_id", exchangeID).Msg("Entitlement charged")
	}
	return nil
}

// Refund returns the unit reserved for an exchange that ended in error.
func (s *EntitlementService) Refund(ctx context.Context, callerID, exchangeID string) error {
	released, err := s.store.ReleaseCharge(ctx, exchangeID)
	if err != nil {
		return err
	}
	if released {
		zerolog.Ctx(ctx).Debug().Str("caller_id", callerID).Str("exchange_id", exchangeID).Msg("Entitlement refunded")
	}
	return nil
}
