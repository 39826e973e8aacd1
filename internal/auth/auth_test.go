package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestRouter(v *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(v), func(c *gin.Context) {
		id, _ := CallerID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter(NewVerifier(Config{JWTSecret: testSecret}))
	valid := signHS256(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"Valid token", "Bearer " + valid, http.StatusOK, "user-1"},
		{"Missing header", "", http.StatusUnauthorized, ""},
		{"Malformed header", valid, http.StatusUnauthorized, ""},
		{"Wrong secret", "Bearer " + signHS256(t, jwt.MapClaims{"sub": "user-1"}, "other"), http.StatusUnauthorized, ""},
		{"Expired", "Bearer " + signHS256(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()}, testSecret), http.StatusUnauthorized, ""},
		{"No subject", "Bearer " + signHS256(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret), http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestAuthMiddlewareWebSocketQueryToken(t *testing.T) {
	r := newTestRouter(NewVerifier(Config{JWTSecret: testSecret}))
	token := signHS256(t, jwt.MapClaims{"sub": "user-ws"}, testSecret)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-ws", w.Body.String())
}

func TestVerifyRS256WithJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]interface{}{
				{"kty": "RSA", "kid": "key-1", "use": "sig", "x5c": []string{base64.StdEncoding.EncodeToString(der)}},
			},
		})
	}))
	defer server.Close()

	v := NewVerifier(Config{JWKSURL: server.URL})
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-rs"})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "user-rs", claims["sub"])

	_, err = v.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	t.Run("Unknown key id", func(t *testing.T) {
		other := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-rs"})
		other.Header["kid"] = "key-2"
		signed, err := other.SignedString(key)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err = v.Verify(context.Background(), signed)
			assert.Error(t, err)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

		v.mu.Lock()
		v.fetchedAt = time.Now().Add(-2 * jwksMissRefetchInterval)
		v.mu.Unlock()

		_, err = v.Verify(context.Background(), signed)
		assert.Error(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
	})

	t.Run("HS256 rejected when only JWKS is configured", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signHS256(t, jwt.MapClaims{"sub": "x"}, testSecret))
		assert.Error(t, err)
	})
}
