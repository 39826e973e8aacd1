package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"harthio_ai_gateway/internal/auth"
	"harthio_ai_gateway/internal/database"
	"harthio_ai_gateway/internal/flags"
	"harthio_ai_gateway/internal/llm"
	"harthio_ai_gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
	err  error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{
		Content: "You're not alone in this.",
		Model:   req.Model,
		Usage:   llm.Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}, nil
}

// testAuth trusts the X-Test-Caller header.
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Caller"); id != "" {
			c.Set(auth.CallerIDKey, id)
		}
		c.Next()
	}
}

func setupRouter(t *testing.T, providerErr error, limiter *CallerLimiter, mutate func(cfg *flags.GatewayConfig)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)

	cfg := flags.Default()
	if mutate != nil {
		mutate(cfg)
	}
	store := flags.NewStore(cfg)

	entitlementDB := services.NewEntitlementServiceDB(db)
	router := services.NewProviderRouter(store, map[string]llm.Provider{
		flags.BackendQuality: &stubProvider{name: "deepseek", err: providerErr},
		flags.BackendEconomy: &stubProvider{name: "groq", err: providerErr},
	})
	gateway := services.NewGatewayService(
		services.NewEntitlementService(entitlementDB, entitlementDB, store),
		services.NewKeywordClassifier(),
		services.NewConversationCompactor(cfg.Compaction.Threshold, cfg.Compaction.Keep),
		services.NewResponseCache(cfg.Cache.MaxEntries, time.Hour, cfg.Cache.MaxLength),
		router,
		services.NewUsageLedgerService(services.NewUsageLedgerServiceDB(db)),
		store,
		nil,
	)

	r := gin.New()
	r.Use(RequestLogger())
	SetupRoutes(r, gateway, store, testAuth(), limiter, nil)
	return r
}

func postChat(r *gin.Engine, caller string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	payload, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, "/api/ai/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Test-Caller", caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func messages(content string) gin.H {
	return gin.H{"messages": []gin.H{{"role": "user", "content": content}}, "session_id": "s-1"}
}

func errorBody(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected an error object, got %v", body)
	return e
}

func TestChatHandler(t *testing.T) {
	t.Run("Successful exchange", func(t *testing.T) {
		r := setupRouter(t, nil, nil, nil)

		w, body := postChat(r, "user-1", messages("I want to stop drinking"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "You're not alone in this.", body["message"])
		assert.Equal(t, "groq", body["provider_id"])
		assert.NotEmpty(t, w.Header().Get(requestIDHeader))
		entitlement := body["entitlement"].(map[string]interface{})
		assert.EqualValues(t, 4, entitlement["remaining"])
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		r := setupRouter(t, nil, nil, nil)

		w, body := postChat(r, "", messages("hello"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", errorBody(t, body)["type"])
	})

	t.Run("Malformed body", func(t *testing.T) {
		r := setupRouter(t, nil, nil, nil)

		w, body := postChat(r, "user-1", gin.H{"messages": "not a list"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "BAD_REQUEST", errorBody(t, body)["type"])
	})

	t.Run("Validation error", func(t *testing.T) {
		r := setupRouter(t, nil, nil, nil)

		w, body := postChat(r, "user-1", gin.H{"messages": []gin.H{{"role": "assistant", "content": "hello"}}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorBody(t, body)["type"])
	})

	t.Run("Exhausted quota is declined", func(t *testing.T) {
		r := setupRouter(t, nil, nil, func(cfg *flags.GatewayConfig) { cfg.FreeDailyLimit = 0 })

		w, body := postChat(r, "user-1", messages("hello again"))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		e := errorBody(t, body)
		assert.Equal(t, "ADMISSION_DENIED", e["type"])
		assert.EqualValues(t, 0, e["remaining"])
		assert.Equal(t, "/pricing", e["upgrade_url"])
		assert.NotEmpty(t, e["reset_time"])
		assert.Contains(t, e["message"], "free messages")
	})

	t.Run("Provider failure keeps safety resources", func(t *testing.T) {
		r := setupRouter(t, errors.New("timeout"), nil, nil)

		w, body := postChat(r, "user-1", messages("I want to end my life"))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		e := errorBody(t, body)
		assert.Equal(t, "PROVIDER_ERROR", e["type"])
		assert.Equal(t, true, e["crisis_detected"])
		assert.NotEmpty(t, e["safety_resources"])
	})

	t.Run("No provider enabled", func(t *testing.T) {
		r := setupRouter(t, nil, nil, func(cfg *flags.GatewayConfig) {
			cfg.Providers = map[string]flags.ProviderConfig{}
		})

		w, body := postChat(r, "user-1", messages("Tell me about the twelve steps"))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "CONFIGURATION_ERROR", errorBody(t, body)["type"])
	})

	t.Run("Bursts are rate limited", func(t *testing.T) {
		r := setupRouter(t, nil, NewCallerLimiter(0.001, 1), nil)

		first, _ := postChat(r, "user-1", messages("Tell me about the twelve steps"))
		second, body := postChat(r, "user-1", messages("Tell me about the twelve steps"))
		other, _ := postChat(r, "user-2", messages("Tell me about the twelve steps"))

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.Equal(t, "RATE_LIMITED", errorBody(t, body)["type"])
		assert.Equal(t, http.StatusOK, other.Code)
	})
}

func TestQuotaHandler(t *testing.T) {
	r := setupRouter(t, nil, nil, nil)
	postChat(r, "user-1", messages("I want to stop drinking"))

	req, _ := http.NewRequest(http.MethodGet, "/api/ai/quota", nil)
	req.Header.Set("X-Test-Caller", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entitlement services.EntitlementDecision `json:"entitlement"`
		UpgradeURL  string                       `json:"upgrade_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Entitlement.Remaining)
	assert.Equal(t, 5, body.Entitlement.Limit)
	assert.Equal(t, services.SourceFree, body.Entitlement.Source)
	assert.Equal(t, "/pricing", body.UpgradeURL)
}

func TestHealthz(t *testing.T) {
	r := setupRouter(t, nil, nil, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCallerLimiterSweep(t *testing.T) {
	l := NewCallerLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	now = now.Add(10 * time.Minute)
	assert.True(t, l.Allow("b"))

	assert.Equal(t, 1, l.Sweep(5*time.Minute))
	assert.True(t, l.Allow("a"))
}
