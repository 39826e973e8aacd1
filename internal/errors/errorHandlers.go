package errors

import (
	"errors"
	"net/http"

	"harthio_ai_gateway/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeValidation          ErrorType = "VALIDATION_ERROR"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeAdmissionDenied     ErrorType = "ADMISSION_DENIED"
	ErrorTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrorTypeConfiguration       ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeProvider            ErrorType = "PROVIDER_ERROR"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
	// Details are merged into the rendered error object.
	Details gin.H
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

// WithDetails attaches extra fields to the error body
func (e *CustomError) WithDetails(details gin.H) *CustomError {
	if e.Details == nil {
		e.Details = gin.H{}
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// NewValidationError is returned for malformed or oversized chat input
func NewValidationError(message string, internal error) *CustomError {
	return newError(ErrorTypeValidation, message, http.StatusBadRequest, internal)
}

// New401Error creates a new unauthorized error
func New401Error(message string) *CustomError {
	if message == "" {
		message = "Unauthorized access"
	}
	return newError(ErrorTypeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewAdmissionDeniedError is the structured decline for an exhausted quota
func NewAdmissionDeniedError(message string) *CustomError {
	return newError(ErrorTypeAdmissionDenied, message, http.StatusTooManyRequests, nil)
}

func NewRateLimitedError() *CustomError {
	return newError(ErrorTypeRateLimited, "You're sending messages too quickly. Please slow down.", http.StatusTooManyRequests, nil)
}

// NewConfigurationError is fatal for the request and never retried
func NewConfigurationError(internal error) *CustomError {
	return newError(ErrorTypeConfiguration, "The assistant is not available right now.", http.StatusServiceUnavailable, internal)
}

// NewProviderError is the generic retry prompt shown after failover is exhausted
func NewProviderError(internal error) *CustomError {
	return newError(ErrorTypeProvider, "The assistant is temporarily unavailable. Please try again in a moment.", http.StatusBadGateway, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromServiceError maps gateway errors onto the HTTP taxonomy
func FromServiceError(err error) *CustomError {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return NewValidationError(validationErr.Message, err)
	}
	var configErr *services.ConfigurationError
	if errors.As(err, &configErr) {
		return NewConfigurationError(err)
	}
	var providerErr *services.ProviderError
	if errors.As(err, &providerErr) {
		return NewProviderError(err)
	}
	return New500Error(err)
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	var customErr *CustomError
	if !errors.As(err, &customErr) {
		customErr = New500Error(err)
	}

	switch customErr.Type {
	case ErrorTypeInternalServerError, ErrorTypeConfiguration, ErrorTypeProvider:
		log.Error().
			Err(customErr.Internal).
			Str("type", string(customErr.Type)).
			Str("url", c.Request.URL.String()).
			Msg("Request failed")
	}

	body := gin.H{
		"type":    customErr.Type,
		"message": customErr.Message,
	}
	for k, v := range customErr.Details {
		body[k] = v
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{"error": body})
}
