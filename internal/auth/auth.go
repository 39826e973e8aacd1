package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "harthio_ai_gateway/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CallerIDKey is the gin context key holding the authenticated caller id.
const CallerIDKey = "caller_id"

const (
	jwksRefreshInterval = time.Hour
	// Minimum gap between refetches triggered by an unknown key id.
	jwksMissRefetchInterval = time.Minute
)

type Config struct {
	// JWTSecret enables HS256 tokens signed with a shared secret.
	JWTSecret string
	// JWKSURL enables RS256 tokens verified against a JSON Web Key Set.
	JWKSURL    string
	HTTPClient *http.Client
}

// Verifier checks bearer tokens. RS256 keys are fetched from the JWKS
// endpoint and cached by key id.
type Verifier struct {
	cfg       Config
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewVerifier(cfg Config) *Verifier {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{cfg: cfg, keys: map[string]*rsa.PublicKey{}}
}

func AuthMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		var token string

		// Browsers cannot set headers on websocket upgrades, so the token comes in the query.
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
			if token == "" {
				apperrors.HandleError(c, apperrors.New401Error("Token query parameter is required"))
				return
			}
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				apperrors.HandleError(c, apperrors.New401Error("Authorization header is required"))
				return
			}

			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				apperrors.HandleError(c, apperrors.New401Error("Invalid authorization header"))
				return
			}
			token = bearerToken[1]
		}

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			log.Debug().Err(err).Msg("Token rejected")
			apperrors.HandleError(c, apperrors.New401Error("Invalid or expired token"))
			return
		}

		callerID, _ := claims["sub"].(string)
		if callerID == "" {
			apperrors.HandleError(c, apperrors.New401Error("Token has no subject"))
			return
		}

		logger := log.With().Str("caller_id", callerID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Set(CallerIDKey, callerID)
		c.Next()
	}
}

// CallerID returns the id set by AuthMiddleware.
func CallerID(c *gin.Context) (string, bool) {
	id := c.GetString(CallerIDKey)
	return id, id != ""
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.cfg.JWTSecret == "" {
				return nil, errors.New("HS256 tokens are not accepted")
			}
			return []byte(v.cfg.JWTSecret), nil
		case *jwt.SigningMethodRSA:
			if v.cfg.JWKSURL == "" {
				return nil, errors.New("RS256 tokens are not accepted")
			}
			kid, _ := token.Header["kid"].(string)
			return v.publicKey(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	age := time.Since(v.fetchedAt)
	v.mu.RUnlock()
	if ok && age < jwksRefreshInterval {
		return key, nil
	}
	if !ok && age < jwksMissRefetchInterval {
		return nil, errors.New("unable to find appropriate key")
	}

	keys, err := v.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	key, ok = keys[kid]
	if !ok {
		return nil, errors.New("unable to find appropriate key")
	}
	return key, nil
}

func (v *Verifier) fetchJWKS(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var jwks = struct {
		Keys []struct {
			Kty string   `json:"kty"`
			Kid string   `json:"kid"`
			Use string   `json:"use"`
			X5c []string `json:"x5c"`
		} `json:"keys"`
	}{}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || len(k.X5c) == 0 {
			continue
		}
		cert := "-----BEGIN CERTIFICATE-----\n" + k.X5c[0] + "\n-----END CERTIFICATE-----"
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			return nil, fmt.Errorf("invalid certificate for key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = key
	}
	return keys, nil
}
