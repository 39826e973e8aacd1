package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
)

// SubscriptionLister returns the subscriptions of a Stripe customer.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
}

type stripeSubscriptions struct{}

func (stripeSubscriptions) ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var subs []*stripe.Subscription
	it := subscription.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

// StripeTierSource resolves the tier from live Stripe subscriptions for
// callers that have a customer id, and from the fallback source otherwise.
type StripeTierSource struct {
	fallback      TierSource
	subscriptions SubscriptionLister
}

func NewStripeTierSource(secretKey string, fallback TierSource) *StripeTierSource {
	stripe.Key = secretKey
	return &StripeTierSource{
		fallback:      fallback,
		subscriptions: stripeSubscriptions{},
	}
}

// NewStripeTierSourceWithLister is used when the Stripe client is provided by the caller.
func NewStripeTierSourceWithLister(fallback TierSource, lister SubscriptionLister) *StripeTierSource {
	return &StripeTierSource{fallback: fallback, subscriptions: lister}
}

func (s *StripeTierSource) GetTier(ctx context.Context, callerID string) (TierInfo, error) {
	info, err := s.fallback.GetTier(ctx, callerID)
	if err != nil {
		return TierInfo{}, err
	}
	if info.StripeCustomerID == "" {
		return info, nil
	}

	subs, err := s.subscriptions.ListSubscriptions(ctx, info.StripeCustomerID)
	if err != nil {
		return TierInfo{}, fmt.Errorf("failed to list stripe subscriptions: %w", err)
	}
	return tierFromSubscriptions(info.StripeCustomerID, subs), nil
}

func tierFromSubscriptions(customerID string, subs []*stripe.Subscription) TierInfo {
	info := TierInfo{Tier: TierFree, StripeCustomerID: customerID}
	for _, sub := range subs {
		switch sub.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusPastDue:
			info.Tier = TierPro
			info.IsTrial = false
			info.TrialEndsAt = nil
			return info
		case stripe.SubscriptionStatusTrialing:
			info.IsTrial = true
			if sub.TrialEnd > 0 {
				end := time.Unix(sub.TrialEnd, 0)
				info.TrialEndsAt = &end
			}
		}
	}
	return info
}
