package api

import (
	"context"
	"net/http"

	"harthio_ai_gateway/internal/auth"
	apperrors "harthio_ai_gateway/internal/errors"
	"harthio_ai_gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages  []chatMessage `json:"messages" binding:"required"`
	SessionID string        `json:"session_id"`
	IdleNudge bool          `json:"idle_nudge"`
}

func (r chatRequest) toService(callerID string) services.ChatRequest {
	messages := make([]services.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = services.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return services.ChatRequest{
		CallerID:  callerID,
		SessionID: r.SessionID,
		Messages:  messages,
		IdleNudge: r.IdleNudge,
	}
}

func SetupRoutes(r *gin.Engine, gateway *services.GatewayService, flagSource services.FlagSource, authMiddleware gin.HandlerFunc, limiter *CallerLimiter, db Pinger) {
	r.GET("/healthz", healthHandler(db))

	api := r.Group("/api/ai")
	api.Use(authMiddleware)
	{
		api.POST("/chat", limiter.Middleware(), chatHandler(gateway, flagSource))
		api.GET("/quota", quotaHandler(gateway, flagSource))
	}
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func chatHandler(gateway *services.GatewayService, flagSource services.FlagSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := auth.CallerID(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error(""))
			return
		}

		var request chatRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid request body"))
			return
		}

		result, err := gateway.HandleChat(c.Request.Context(), request.toService(callerID))
		if err != nil {
			httpErr := apperrors.FromServiceError(err)
			if result != nil {
				httpErr.WithDetails(gin.H{"exchange_id": result.ExchangeID})
				if result.CrisisDetected {
					httpErr.WithDetails(gin.H{
						"crisis_detected":  true,
						"safety_resources": result.SafetyResources,
					})
				}
			}
			apperrors.HandleError(c, httpErr)
			return
		}

		if result.Blocked {
			apperrors.HandleError(c, declineError(result.Entitlement, flagSource.Current().UpgradeURL))
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func declineError(d services.EntitlementDecision, upgradeURL string) *apperrors.CustomError {
	return apperrors.NewAdmissionDeniedError(services.DeclineMessage(d, upgradeURL)).WithDetails(gin.H{
		"reason":      d.Reason,
		"remaining":   d.Remaining,
		"limit":       d.Limit,
		"reset_time":  d.ResetTime,
		"upgrade_url": upgradeURL,
	})
}

func quotaHandler(gateway *services.GatewayService, flagSource services.FlagSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := auth.CallerID(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error(""))
			return
		}

		decision := gateway.Quota(c.Request.Context(), callerID)
		c.JSON(http.StatusOK, gin.H{
			"entitlement": decision,
			"upgrade_url": flagSource.Current().UpgradeURL,
		})
	}
}
