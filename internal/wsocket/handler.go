package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	apperrors "harthio_ai_gateway/internal/errors"
	"harthio_ai_gateway/internal/services"
	"harthio_ai_gateway/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	TypeMessage     = "message"
	TypeAI          = "ai"
	TypeBlocked     = "blocked"
	TypeError       = "error"
	TypeSafety      = "safety"
	TypeQuotaUpdate = "quota_update"
	TypePing        = "ping"
	TypePong        = "pong"

	endMarker = "[END]"
)

// RateLimiter admits bursts per caller ahead of the entitlement check.
type RateLimiter interface {
	Allow(callerID string) bool
}

type Handler struct {
	gateway      *services.GatewayService
	flags        services.FlagSource
	broker       *broker.Broker
	limiter      RateLimiter
	upgrader     websocket.Upgrader
	chunkWords   int
	writeTimeout time.Duration
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Message struct {
	Type      string        `json:"type"`
	Content   string        `json:"content,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	IdleNudge bool          `json:"idle_nudge,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
}

func NewHandler(gateway *services.GatewayService, flagSource services.FlagSource, messageBroker *broker.Broker, limiter RateLimiter, upgrader websocket.Upgrader) *Handler {
	return &Handler{
		gateway:      gateway,
		flags:        flagSource,
		broker:       messageBroker,
		limiter:      limiter,
		upgrader:     upgrader,
		chunkWords:   8,
		writeTimeout: 10 * time.Second,
	}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.ws.WriteJSON(msg)
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, callerID string) {
	log := zerolog.Ctx(r.Context())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer ws.Close()
	c := &conn{ws: ws, timeout: h.writeTimeout}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := services.QuotaTopic(callerID)
	quotaUpdates := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, quotaUpdates)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-quotaUpdates:
				if !ok {
					return
				}
				if err := c.send(Message{Type: TypeQuotaUpdate, Data: update}); err != nil {
					log.Debug().Err(err).Msg("Failed to send quota update")
					return
				}
			}
		}
	}()

	log.Info().Msg("Websocket connected")
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Websocket read failed")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send(Message{Type: TypeError, Content: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case TypeMessage:
			if err := h.handleChatMessage(ctx, c, callerID, msg); err != nil {
				log.Debug().Err(err).Msg("Failed to write chat response")
				return
			}
		case TypePing:
			c.send(Message{Type: TypePong})
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown websocket message type")
			c.send(Message{Type: TypeError, Content: "Unknown message type"})
		}
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, c *conn, callerID string, msg Message) error {
	if h.limiter != nil && !h.limiter.Allow(callerID) {
		limited := apperrors.NewRateLimitedError()
		return c.send(Message{
			Type:      TypeError,
			Content:   limited.Message,
			SessionID: msg.SessionID,
			Data:      map[string]interface{}{"type": limited.Type},
		})
	}

	messages := make([]services.ChatMessage, len(msg.Messages))
	for i, m := range msg.Messages {
		messages[i] = services.ChatMessage{Role: m.Role, Content: m.Content}
	}

	result, err := h.gateway.HandleChat(ctx, services.ChatRequest{
		CallerID:  callerID,
		SessionID: msg.SessionID,
		Messages:  messages,
		IdleNudge: msg.IdleNudge,
	})

	if result != nil && result.CrisisDetected {
		if err := c.send(Message{Type: TypeSafety, SessionID: msg.SessionID, Data: result.SafetyResources}); err != nil {
			return err
		}
	}

	if err != nil {
		httpErr := apperrors.FromServiceError(err)
		return c.send(Message{
			Type:      TypeError,
			Content:   httpErr.Message,
			SessionID: msg.SessionID,
			Data:      map[string]interface{}{"type": httpErr.Type},
		})
	}

	if result.Blocked {
		return c.send(Message{
			Type:      TypeBlocked,
			Content:   services.DeclineMessage(result.Entitlement, h.flags.Current().UpgradeURL),
			SessionID: msg.SessionID,
			Data:      result.Entitlement,
		})
	}

	for _, chunk := range splitChunks(result.Message, h.chunkWords) {
		if err := c.send(Message{Type: TypeAI, Content: chunk, SessionID: msg.SessionID}); err != nil {
			return err
		}
	}
	return c.send(Message{Type: TypeAI, Content: endMarker, SessionID: msg.SessionID, Data: result})
}

// splitChunks groups text into pieces of at most n words, keeping the
// original spacing so that concatenating the chunks restores the text.
func splitChunks(text string, n int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	words := 0
	start := 0
	inWord := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if !space && !inWord {
			if words == n {
				chunks = append(chunks, text[start:i])
				start = i
				words = 0
			}
			words++
		}
		inWord = !space
	}
	return append(chunks, text[start:])
}
