package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"harthio_ai_gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	render := func(err error) (int, map[string]interface{}) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/ai/chat", nil)
		HandleError(c, err)

		var body map[string]map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body["error"]
	}

	t.Run("Admission denied carries details", func(t *testing.T) {
		code, body := render(NewAdmissionDeniedError("No messages left today").WithDetails(gin.H{"remaining": 0, "limit": 5}))

		assert.Equal(t, http.StatusTooManyRequests, code)
		assert.Equal(t, "ADMISSION_DENIED", body["type"])
		assert.Equal(t, "No messages left today", body["message"])
		assert.EqualValues(t, 0, body["remaining"])
		assert.EqualValues(t, 5, body["limit"])
	})

	t.Run("Wrapped custom error keeps its status", func(t *testing.T) {
		code, body := render(fmt.Errorf("chat: %w", NewProviderError(fmt.Errorf("both providers failed"))))

		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "PROVIDER_ERROR", body["type"])
	})

	t.Run("Unknown error becomes 500 without leaking", func(t *testing.T) {
		code, body := render(fmt.Errorf("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "An unexpected error occurred", body["message"])
	})
}

func TestFromServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    ErrorType
	}{
		{"Validation", &services.ValidationError{Message: "message 0 is empty"}, http.StatusBadRequest, ErrorTypeValidation},
		{"Configuration", &services.ConfigurationError{Err: services.ErrNoProviderEnabled}, http.StatusServiceUnavailable, ErrorTypeConfiguration},
		{"Provider", &services.ProviderError{Providers: []string{"groq", "deepseek"}, Err: fmt.Errorf("timeout")}, http.StatusBadGateway, ErrorTypeProvider},
		{"Already mapped", NewRateLimitedError(), http.StatusTooManyRequests, ErrorTypeRateLimited},
		{"Unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ErrorTypeInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := FromServiceError(tt.err)
			assert.Equal(t, tt.status, mapped.StatusCode)
			assert.Equal(t, tt.typ, mapped.Type)
		})
	}

	t.Run("Validation message is shown to the caller", func(t *testing.T) {
		mapped := FromServiceError(&services.ValidationError{Message: "message 0 is empty"})
		assert.Equal(t, "message 0 is empty", mapped.Message)
	})
}
