package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"harthio_ai_gateway/internal/llm"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxConversationMessages = 200
	MaxMessageLength        = 4000
	CacheProviderID         = "cache"
)

type SafetyResource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	URL     string `json:"url,omitempty"`
}

// SafetyResources are shown whenever a message reaches a high crisis level.
var SafetyResources = []SafetyResource{
	{Name: "988 Suicide & Crisis Lifeline (US)", Contact: "Call or text 988", URL: "https://988lifeline.org"},
	{Name: "Crisis Text Line", Contact: "Text HOME to 741741", URL: "https://www.crisistextline.org"},
	{Name: "Find a helpline in your country", Contact: "International directory", URL: "https://findahelpline.com"},
	{Name: "Emergency services", Contact: "Call your local emergency number (911, 112, 999)"},
}

var defaultPrompts = map[InterventionType]string{
	InterventionNone:          "You are a warm, non-judgmental peer support companion for people in recovery. Keep replies short and encouraging.",
	InterventionStruggling:    "You are a peer support companion. The person is struggling. Acknowledge their feelings and offer one practical coping step.",
	InterventionCrisis:        "You are a supportive companion. The person may be in crisis. Respond with empathy, encourage contacting a crisis line or emergency services, and do not give clinical advice.",
	InterventionSessionAssist: "You help people prepare for and reflect on peer support sessions. Offer brief, practical suggestions.",
	InterventionIdle:          "You are a friendly companion checking in. Keep it light and invite the person to share how their day is going.",
}

type ChatRequest struct {
	CallerID  string
	SessionID string
	Messages  []ChatMessage
	// IdleNudge marks a client-initiated check-in after inactivity.
	IdleNudge bool
}

type ChatResult struct {
	ExchangeID      string                `json:"exchange_id"`
	Blocked         bool                  `json:"blocked"`
	Message         string                `json:"message,omitempty"`
	Usage           llm.Usage             `json:"usage"`
	ProviderID      string                `json:"provider_id,omitempty"`
	Backend         string                `json:"backend,omitempty"`
	Model           string                `json:"model,omitempty"`
	Cached          bool                  `json:"cached"`
	Failover        bool                  `json:"failover"`
	Entitlement     EntitlementDecision   `json:"entitlement"`
	Classification  *ClassificationResult `json:"classification,omitempty"`
	CrisisDetected  bool                  `json:"crisis_detected"`
	SafetyResources []SafetyResource      `json:"safety_resources,omitempty"`
}

// GatewayService sequences admission, classification, compaction, caching,
// routing, metering and charging for one chat exchange.
type GatewayService struct {
	entitlement EntitlementResolver
	classifier  Classifier
	compactor   Compactor
	cache       ResponseCacher
	router      Router
	ledger      LedgerRecorder
	flags       FlagSource
	publisher   Publisher
}

func NewGatewayService(
	entitlement EntitlementResolver,
	classifier Classifier,
	compactor Compactor,
	cache ResponseCacher,
	router Router,
	ledger LedgerRecorder,
	flagSource FlagSource,
	publisher Publisher,
) *GatewayService {
	return &GatewayService{
		entitlement: entitlement,
		classifier:  classifier,
		compactor:   compactor,
		cache:       cache,
		router:      router,
		ledger:      ledger,
		flags:       flagSource,
		publisher:   publisher,
	}
}

// QuotaTopic is the broker topic carrying entitlement snapshots for a caller.
func QuotaTopic(callerID string) string {
	return "quota_update_" + callerID
}

// ValidateChatRequest rejects input that must never reach a provider.
func ValidateChatRequest(req ChatRequest) error {
	if req.CallerID == "" {
		return &ValidationError{Message: "caller identity is required"}
	}
	if len(req.Messages) == 0 {
		return &ValidationError{Message: "at least one message is required"}
	}
	if len(req.Messages) > MaxConversationMessages {
		return &ValidationError{Message: fmt.Sprintf("conversation exceeds %d messages", MaxConversationMessages)}
	}
	for i, m := range req.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return &ValidationError{Message: fmt.Sprintf("message %d has unsupported role %q", i, m.Role)}
		}
		if strings.TrimSpace(m.Content) == "" {
			return &ValidationError{Message: fmt.Sprintf("message %d is empty", i)}
		}
		if utf8.RuneCountInString(m.Content) > MaxMessageLength {
			return &ValidationError{Message: fmt.Sprintf("message %d exceeds %d characters", i, MaxMessageLength)}
		}
	}
	if req.Messages[len(req.Messages)-1].Role != RoleUser {
		return &ValidationError{Message: "the last message must come from the user"}
	}
	return nil
}

// Quota returns the caller's entitlement snapshot without consuming anything.
func (s *GatewayService) Quota(ctx context.Context, callerID string) EntitlementDecision {
	return s.entitlement.Resolve(ctx, callerID)
}

// HandleChat runs one exchange. Blocked admissions return a result with
// Blocked set and no error. On error the result is still returned so that
// safety resources reach the caller.
func (s *GatewayService) HandleChat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if err := ValidateChatRequest(req); err != nil {
		return nil, err
	}

	exchangeID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().
		Str("exchange_id", exchangeID).
		Str("caller_id", req.CallerID).
		Logger()
	ctx = logger.WithContext(ctx)

	last := req.Messages[len(req.Messages)-1].Content
	result := &ChatResult{ExchangeID: exchangeID}

	decision := s.entitlement.Admit(ctx, req.CallerID, exchangeID)
	result.Entitlement = decision
	if !decision.Allowed {
		logger.Info().Str("reason", decision.Reason).Msg("Admission denied")
		s.record(ctx, LedgerEntry{
			ExchangeID: exchangeID,
			CallerID:   req.CallerID,
			SessionID:  req.SessionID,
			Role:       RoleUser,
			Content:    last,
			APIError:   "admission denied: " + decision.Reason,
		})
		result.Blocked = true
		return result, nil
	}

	classification := s.classifier.Classify(last)
	if req.IdleNudge && classification.InterventionType == InterventionNone {
		classification.InterventionType = InterventionIdle
	}
	result.Classification = &classification
	if classification.NeedsSafetyResources() {
		result.CrisisDetected = true
		result.SafetyResources = SafetyResources
		logger.Warn().Str("crisis_level", classification.CrisisLevel.String()).Msg("Crisis language detected")
	}

	s.record(ctx, LedgerEntry{
		ExchangeID:     exchangeID,
		CallerID:       req.CallerID,
		SessionID:      req.SessionID,
		Role:           RoleUser,
		Content:        last,
		Classification: &classification,
	})

	compacted := s.compactor.Compact(req.Messages, s.systemPrompt(classification.InterventionType))

	cacheable := s.cache != nil && s.cache.Eligible(last, classification)
	if cacheable {
		if cached, ok := s.cache.Get(last); ok {
			s.record(ctx, LedgerEntry{
				ExchangeID:     exchangeID,
				CallerID:       req.CallerID,
				SessionID:      req.SessionID,
				Role:           RoleAssistant,
				Content:        cached.Content,
				ProviderID:     CacheProviderID,
				Model:          cached.Model,
				Cached:         true,
				Classification: &classification,
			})
			result.Message = cached.Content
			result.Usage = cached.Usage
			result.ProviderID = CacheProviderID
			result.Model = cached.Model
			result.Cached = true
			s.finish(ctx, req.CallerID, exchangeID, result)
			return result, nil
		}
	}

	selection, err := s.router.Select(classification, decision.Tier)
	if err != nil {
		s.fail(ctx, req, exchangeID, &classification, err)
		return result, err
	}

	attempts, err := s.router.InvokeWithFailover(ctx, selection, PayloadFor(selection, compacted))
	for _, attempt := range attempts {
		entry := LedgerEntry{
			ExchangeID:     exchangeID,
			CallerID:       req.CallerID,
			SessionID:      req.SessionID,
			Role:           RoleAssistant,
			ResponseTime:   attempt.Latency,
			ProviderID:     attempt.Selection.ProviderID,
			Model:          attempt.Selection.Model,
			CostUSD:        attempt.CostUSD,
			Classification: &classification,
		}
		if attempt.Err != nil {
			entry.APIError = attempt.Err.Error()
		} else {
			entry.Content = attempt.Response.Content
			entry.Usage = attempt.Response.Usage
			entry.Model = attempt.Response.Model
		}
		s.record(ctx, entry)
	}
	if err != nil {
		s.refund(ctx, req.CallerID, exchangeID)
		return result, err
	}

	served := attempts[len(attempts)-1]
	result.Message = served.Response.Content
	result.Usage = served.Response.Usage
	result.ProviderID = served.Selection.ProviderID
	result.Backend = served.Selection.Backend
	result.Model = served.Response.Model
	result.Failover = len(attempts) > 1

	if cacheable {
		s.cache.Put(last, CachedResponse{
			Content:    served.Response.Content,
			Usage:      served.Response.Usage,
			ProviderID: served.Selection.ProviderID,
			Model:      served.Response.Model,
		})
	}

	s.finish(ctx, req.CallerID, exchangeID, result)
	return result, nil
}

func (s *GatewayService) systemPrompt(t InterventionType) string {
	if s.flags != nil {
		if prompt, ok := s.flags.Current().Prompts[string(t)]; ok && prompt != "" {
			return prompt
		}
	}
	return defaultPrompts[t]
}

// Ledger and charge writes ignore caller cancellation.
func (s *GatewayService) record(ctx context.Context, entry LedgerEntry) {
	if err := s.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Ledger write failed")
	}
}

// fail writes the error entry for a request that never reached a provider.
func (s *GatewayService) fail(ctx context.Context, req ChatRequest, exchangeID string, classification *ClassificationResult, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Exchange failed")
	s.record(ctx, LedgerEntry{
		ExchangeID:     exchangeID,
		CallerID:       req.CallerID,
		SessionID:      req.SessionID,
		Role:           RoleAssistant,
		APIError:       err.Error(),
		Classification: classification,
	})
	s.refund(ctx, req.CallerID, exchangeID)
}

func (s *GatewayService) refund(ctx context.Context, callerID, exchangeID string) {
	if err := s.entitlement.Refund(context.WithoutCancel(ctx), callerID, exchangeID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to refund entitlement")
	}
}

func (s *GatewayService) finish(ctx context.Context, callerID, exchangeID string, result *ChatResult) {
	if err := s.entitlement.Charge(context.WithoutCancel(ctx), callerID, exchangeID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to commit entitlement charge")
	}
	if s.publisher != nil {
		s.publisher.Publish(QuotaTopic(callerID), result.Entitlement)
	}
	zerolog.Ctx(ctx).Info().
		Str("provider", result.ProviderID).
		Bool("cached", result.Cached).
		Bool("failover", result.Failover).
		Int("tokens", result.Usage.TotalTokens).
		Msg("Exchange complete")
}

// DeclineMessage is the human readable text for a blocked admission.
func DeclineMessage(d EntitlementDecision, upgradeURL string) string {
	if d.Reason == ReasonEntitlementUnavailable {
		return "We couldn't check your message allowance right now. Please try again in a few minutes."
	}
	reset := d.ResetTime.Format("15:04 MST")
	msg := fmt.Sprintf("You've used all %d free messages for today. Your allowance resets at %s.", d.Limit, reset)
	if upgradeURL != "" {
		msg += " Upgrade to Pro for unlimited conversations: " + upgradeURL
	}
	return msg
}
