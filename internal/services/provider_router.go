package services

import (
	"context"
	"time"

	"harthio_ai_gateway/internal/flags"
	"harthio_ai_gateway/internal/llm"

	"github.com/rs/zerolog"
)

// FlagSource exposes the live gateway configuration.
type FlagSource interface {
	Current() *flags.GatewayConfig
}

// Pricing is USD per million tokens.
type Pricing struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

func (p Pricing) Cost(usage llm.Usage) float64 {
	return float64(usage.PromptTokens)*p.InputPerMTok/1_000_000 +
		float64(usage.CompletionTokens)*p.OutputPerMTok/1_000_000
}

type ProviderSelection struct {
	Backend     string        `json:"backend"`
	ProviderID  string        `json:"provider_id"`
	Model       string        `json:"model"`
	Endpoint    string        `json:"endpoint"`
	Pricing     Pricing       `json:"pricing"`
	Temperature float64       `json:"-"`
	MaxTokens   int           `json:"-"`
	Timeout     time.Duration `json:"-"`
}

// Payload is sent unchanged to the primary and, on failure, the alternate backend.
type Payload struct {
	Messages    []llm.Message
	Temperature float64
	MaxTokens   int
}

// Attempt is the outcome of one provider invocation.
type Attempt struct {
	Selection ProviderSelection
	Response  *llm.ChatResponse
	Err       error
	Latency   time.Duration
	CostUSD   float64
}

type ProviderRouter struct {
	flags     FlagSource
	providers map[string]llm.Provider
}

// NewProviderRouter takes adapters keyed by backend (quality, economy).
func NewProviderRouter(flagSource FlagSource, providers map[string]llm.Provider) *ProviderRouter {
	return &ProviderRouter{flags: flagSource, providers: providers}
}

// PreferredBackend applies the routing rule without looking at enable flags.
func PreferredBackend(c ClassificationResult, tier Tier) string {
	if c.Sentiment == SentimentCrisis ||
		c.InterventionType == InterventionCrisis ||
		c.InterventionType == InterventionStruggling ||
		c.Sentiment == SentimentNegative ||
		tier == TierPro {
		return flags.BackendQuality
	}
	return flags.BackendEconomy
}

func otherBackend(backend string) string {
	if backend == flags.BackendQuality {
		return flags.BackendEconomy
	}
	return flags.BackendQuality
}

func (r *ProviderRouter) selection(cfg *flags.GatewayConfig, backend string) (ProviderSelection, bool) {
	pc, ok := cfg.Provider(backend)
	if !ok || !pc.Enabled {
		return ProviderSelection{}, false
	}
	if _, ok := r.providers[backend]; !ok {
		return ProviderSelection{}, false
	}
	return ProviderSelection{
		Backend:     backend,
		ProviderID:  pc.Name,
		Model:       pc.Model,
		Endpoint:    pc.BaseURL,
		Pricing:     Pricing{InputPerMTok: pc.InputPerMTok, OutputPerMTok: pc.OutputPerMTok},
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
		Timeout:     pc.Timeout(),
	}, true
}

// Select picks the backend for a message, falling through to the other one
// when the preferred backend is disabled.
func (r *ProviderRouter) Select(c ClassificationResult, tier Tier) (ProviderSelection, error) {
	cfg := r.flags.Current()
	preferred := PreferredBackend(c, tier)
	if sel, ok := r.selection(cfg, preferred); ok {
		return sel, nil
	}
	if sel, ok := r.selection(cfg, otherBackend(preferred)); ok {
		return sel, nil
	}
	return ProviderSelection{}, &ConfigurationError{Err: ErrNoProviderEnabled}
}

// Invoke performs one call against the selected backend.
func (r *ProviderRouter) Invoke(ctx context.Context, sel ProviderSelection, payload Payload) Attempt {
	attempt := Attempt{Selection: sel}
	provider, ok := r.providers[sel.Backend]
	if !ok {
		attempt.Err = &ConfigurationError{Err: ErrNoProviderEnabled}
		return attempt
	}

	if sel.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sel.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       sel.Model,
		Messages:    payload.Messages,
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
	})
	attempt.Latency = time.Since(start)
	if err != nil {
		attempt.Err = err
		return attempt
	}
	attempt.Response = resp
	attempt.CostUSD = sel.Pricing.Cost(resp.Usage)
	return attempt
}

// InvokeWithFailover calls the primary selection and, if it fails, retries
// exactly once against the alternate enabled backend with the same payload.
// A cancelled caller is not failed over.
// Every attempt is returned in order; err is a *ProviderError when all failed.
func (r *ProviderRouter) InvokeWithFailover(ctx context.Context, primary ProviderSelection, payload Payload) ([]Attempt, error) {
	logger := zerolog.Ctx(ctx)

	first := r.Invoke(ctx, primary, payload)
	attempts := []Attempt{first}
	if first.Err == nil {
		return attempts, nil
	}

	logger.Warn().
		Err(first.Err).
		Str("provider", primary.ProviderID).
		Str("backend", primary.Backend).
		Msg("Primary provider failed")

	if ctx.Err() != nil {
		return attempts, &ProviderError{Providers: []string{primary.ProviderID}, Err: first.Err}
	}

	alternate, ok := r.selection(r.flags.Current(), otherBackend(primary.Backend))
	if !ok {
		return attempts, &ProviderError{Providers: []string{primary.ProviderID}, Err: first.Err}
	}

	second := r.Invoke(ctx, alternate, payload)
	attempts = append(attempts, second)
	if second.Err != nil {
		logger.Error().
			Err(second.Err).
			Str("provider", alternate.ProviderID).
			Msg("Failover provider failed")
		return attempts, &ProviderError{Providers: []string{primary.ProviderID, alternate.ProviderID}, Err: second.Err}
	}

	logger.Info().
		Str("from", primary.ProviderID).
		Str("to", alternate.ProviderID).
		Msg("Served by failover provider")
	return attempts, nil
}

// PayloadFor builds the provider payload from the compacted conversation.
func PayloadFor(sel ProviderSelection, messages []ChatMessage) Payload {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return Payload{Messages: out, Temperature: sel.Temperature, MaxTokens: sel.MaxTokens}
}
