package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	consentdomain "github.com/porterhq/porter/internal/consent/domain"
	integrationdomain "github.com/porterhq/porter/internal/integration/domain"
	"github.com/porterhq/porter/internal/provider"
	secdomain "github.com/porterhq/porter/internal/security/domain"
	tokendomain "github.com/porterhq/porter/internal/token/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var scopeErr *integrationdomain.ScopeError
	if errors.As(err, &scopeErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: scopeErr.Error(),
		}
	}

	// State failures surface as a generic invalid_state; the specific
	// reason stays in internal logs.
	var stateErr *secdomain.StateError
	if errors.As(err, &stateErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: "invalid state",
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, integrationdomain.ErrInvalidRedirectURI),
		errors.Is(err, provider.ErrUnsupported),
		errors.Is(err, consentdomain.ErrInvalidPageToken),
		errors.Is(err, secdomain.ErrInvalidPageToken),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
	case errors.Is(err, provider.ErrNotConfigured):
		// Distinct from a generic failure: the admin has to register the
		// OAuth application before anyone can connect.
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "provider_not_configured",
			Message: "provider credentials are not configured, contact an administrator",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isProviderError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "the provider rejected or failed the request, reconnect your account if this persists",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, consentdomain.ErrNotFound)
}

func isProviderError(err error) bool {
	var provErr *provider.Error
	return errors.As(err, &provErr)
}

func classifyErrorForLog(err error) (string, string) {
	switch status, payload := mapError(err); {
	case status == http.StatusBadRequest:
		return payload.Type, "bad_request"
	case status == http.StatusServiceUnavailable:
		return payload.Type, "service_unavailable"
	case status == http.StatusNotFound:
		return payload.Type, "not_found"
	case status == http.StatusBadGateway:
		return payload.Type, "provider_failure"
	default:
		if isTokenError(err) {
			return "token_error", "internal"
		}
		return payload.Type, "internal"
	}
}

func isTokenError(err error) bool {
	var tokErr *tokendomain.Error
	return errors.As(err, &tokErr)
}
