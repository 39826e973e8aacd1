package services

import (
	"context"
)

type EntitlementResolver interface {
	Resolve(ctx context.Context, callerID string) EntitlementDecision
	Admit(ctx context.Context, callerID, exchangeID string) EntitlementDecision
	Charge(ctx context.Context, callerID, exchangeID string) error
	Refund(ctx context.Context, callerID, exchangeID string) error
}

// Classifier is the cheap first-pass message scorer. It never fails.
type Classifier interface {
	Classify(text string) ClassificationResult
}

type Compactor interface {
	Compact(messages []ChatMessage, systemPrompt string) []ChatMessage
}

type ResponseCacher interface {
	Eligible(message string, classification ClassificationResult) bool
	Get(message string) (*CachedResponse, bool)
	Put(message string, response CachedResponse)
}

type Router interface {
	Select(classification ClassificationResult, tier Tier) (ProviderSelection, error)
	InvokeWithFailover(ctx context.Context, primary ProviderSelection, payload Payload) ([]Attempt, error)
}

type LedgerRecorder interface {
	Record(ctx context.Context, entry LedgerEntry) error
}

// Publisher delivers entitlement snapshots to live client connections.
type Publisher interface {
	Publish(topic string, msg interface{})
}
