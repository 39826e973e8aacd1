package api

import (
	"context"
	"sync"
	"time"

	"harthio_ai_gateway/internal/auth"
	apperrors "harthio_ai_gateway/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request scoped zerolog logger to the request context.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := log.With().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		event := zerolog.Ctx(c.Request.Context()).Info()
		if status >= 500 {
			event = zerolog.Ctx(c.Request.Context()).Error()
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CallerLimiter throttles bursts per caller ahead of admission. It is not a
// quota: rejected requests never reach the entitlement store or the ledger.
type CallerLimiter struct {
	mu      sync.Mutex
	callers map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

// NewCallerLimiter returns a limiter; rps <= 0 disables limiting.
func NewCallerLimiter(rps float64, burst int) *CallerLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &CallerLimiter{
		callers: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *CallerLimiter) Allow(callerID string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.callers[callerID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.callers[callerID] = entry
	}
	entry.lastSeen = l.now()
	return entry.limiter.AllowN(entry.lastSeen, 1)
}

// Sweep forgets callers idle for longer than idle.
func (l *CallerLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	cutoff := l.now().Add(-idle)
	for id, entry := range l.callers {
		if entry.lastSeen.Before(cutoff) {
			delete(l.callers, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle callers until ctx is done.
func (l *CallerLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(interval); n > 0 {
				log.Debug().Int("removed", n).Msg("Swept idle rate limiters")
			}
		}
	}
}

func (l *CallerLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, _ := auth.CallerID(c)
		if !l.Allow(callerID) {
			zerolog.Ctx(c.Request.Context()).Warn().Msg("Rate limited")
			apperrors.HandleError(c, apperrors.NewRateLimitedError())
			return
		}
		c.Next()
	}
}
