package wsocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"harthio_ai_gateway/internal/api"
	"harthio_ai_gateway/internal/database"
	"harthio_ai_gateway/internal/flags"
	"harthio_ai_gateway/internal/llm"
	"harthio_ai_gateway/internal/services"
	"harthio_ai_gateway/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.reply, Model: req.Model, Usage: llm.Usage{TotalTokens: 10}}, nil
}

func setupServer(t *testing.T, provider *stubProvider, freeLimit int) *websocket.Conn {
	t.Helper()
	return setupServerWithLimiter(t, provider, freeLimit, nil)
}

func setupServerWithLimiter(t *testing.T, provider *stubProvider, freeLimit int, limiter RateLimiter) *websocket.Conn {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	cfg := flags.Default()
	cfg.FreeDailyLimit = freeLimit
	store := flags.NewStore(cfg)
	messageBroker := broker.NewBroker()

	entitlementDB := services.NewEntitlementServiceDB(db)
	gateway := services.NewGatewayService(
		services.NewEntitlementService(entitlementDB, entitlementDB, store),
		services.NewKeywordClassifier(),
		services.NewConversationCompactor(12, 10),
		nil,
		services.NewProviderRouter(store, map[string]llm.Provider{
			flags.BackendQuality: provider,
			flags.BackendEconomy: provider,
		}),
		services.NewUsageLedgerService(services.NewUsageLedgerServiceDB(db)),
		store,
		messageBroker,
	)

	handler := NewHandler(gateway, store, messageBroker, limiter, websocket.Upgrader{})
	handler.chunkWords = 2
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleWebSocket(w, r, "user-1")
	}))
	t.Cleanup(server.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, done func(Message) bool) []Message {
	t.Helper()
	var frames []Message
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg Message
		require.NoError(t, ws.ReadJSON(&msg))
		frames = append(frames, msg)
		if done(msg) {
			return frames
		}
	}
}

func chatFrame(content string) Message {
	return Message{
		Type:      TypeMessage,
		SessionID: "s-1",
		Messages:  []ChatMessage{{Role: services.RoleUser, Content: content}},
	}
}

func TestHandleWebSocketStreamsReply(t *testing.T) {
	ws := setupServer(t, &stubProvider{reply: "One step at a time, you are doing well."}, 5)

	require.NoError(t, ws.WriteJSON(chatFrame("I want to stop drinking")))

	sawQuota := false
	frames := readUntil(t, ws, func(m Message) bool {
		if m.Type == TypeQuotaUpdate {
			sawQuota = true
		}
		return m.Type == TypeAI && m.Content == endMarker
	})
	if !sawQuota {
		readUntil(t, ws, func(m Message) bool { return m.Type == TypeQuotaUpdate })
	}

	var chunks []string
	for _, f := range frames {
		if f.Type == TypeAI && f.Content != endMarker {
			chunks = append(chunks, f.Content)
		}
	}
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, "One step at a time, you are doing well.", strings.Join(chunks, ""))
}

func TestHandleWebSocketBlocked(t *testing.T) {
	ws := setupServer(t, &stubProvider{reply: "unused"}, 0)

	require.NoError(t, ws.WriteJSON(chatFrame("hello there")))

	frames := readUntil(t, ws, func(m Message) bool { return m.Type == TypeBlocked })
	assert.Contains(t, frames[len(frames)-1].Content, "free messages")
}

func TestHandleWebSocketCrisisError(t *testing.T) {
	ws := setupServer(t, &stubProvider{err: errors.New("timeout")}, 5)

	require.NoError(t, ws.WriteJSON(chatFrame("I want to end my life")))

	frames := readUntil(t, ws, func(m Message) bool { return m.Type == TypeError })
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	assert.Equal(t, []string{TypeSafety, TypeError}, types)
	assert.NotEmpty(t, frames[0].Data)
}

func TestHandleWebSocketRateLimited(t *testing.T) {
	ws := setupServerWithLimiter(t, &stubProvider{reply: "Keep going."}, 5, api.NewCallerLimiter(0.001, 1))

	require.NoError(t, ws.WriteJSON(chatFrame("I want to stop drinking")))
	readUntil(t, ws, func(m Message) bool { return m.Type == TypeAI && m.Content == endMarker })

	require.NoError(t, ws.WriteJSON(chatFrame("I want to stop drinking")))
	frames := readUntil(t, ws, func(m Message) bool { return m.Type == TypeError })
	limited := frames[len(frames)-1]
	assert.Equal(t, "s-1", limited.SessionID)
	assert.Equal(t, "RATE_LIMITED", limited.Data.(map[string]interface{})["type"])
}

func TestMessageFieldNames(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"message","session_id":"s-9","idle_nudge":true,"messages":[{"role":"user","content":"hi"}]}`), &msg))
	assert.Equal(t, "s-9", msg.SessionID)
	assert.True(t, msg.IdleNudge)
	require.Len(t, msg.Messages, 1)
}

func TestHandleWebSocketPing(t *testing.T) {
	ws := setupServer(t, &stubProvider{reply: "hi"}, 5)

	require.NoError(t, ws.WriteJSON(Message{Type: TypePing}))

	frames := readUntil(t, ws, func(m Message) bool { return m.Type == TypePong })
	assert.Len(t, frames, 1)
}

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, splitChunks("", 3))
	assert.Equal(t, []string{"a b ", "c d ", "e"}, splitChunks("a b c d e", 2))
	assert.Equal(t, []string{"one  two\n"}, splitChunks("one  two\n", 5))
}
