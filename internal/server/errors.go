package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/oauth"
	"github.com/smallbiznis/taskora/internal/auth/webauthn"
	"github.com/smallbiznis/taskora/internal/token"
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
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware turns the last gin error into a uniform JSON
// error envelope. Handlers push errors with AbortWithError and never write
// error bodies themselves.
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

	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, domain.ErrEmailInvalid):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: "email", Code: "invalid_email", Message: "email address is invalid"}},
		}

	case errors.Is(err, domain.ErrPasswordTooShort):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: "password", Code: "too_short", Message: "password must be at least 8 characters"}},
		}

	// Credential failures are deliberately uniform: wrong password, unknown
	// account and OAuth-only account all map to the same response.
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{Type: "invalid_credentials", Message: "invalid email or password"}

	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, errorPayload{Type: "token_expired", Message: "credential has expired"}

	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, domain.ErrWrongTokenUse),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}

	case errors.Is(err, domain.ErrTokenRevoked),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusUnauthorized, errorPayload{Type: "token_revoked", Message: "credential is no longer valid"}

	case errors.Is(err, webauthn.ErrCounterReplay):
		return http.StatusUnauthorized, errorPayload{Type: "credential_replay", Message: "credential rejected"}

	case errors.Is(err, webauthn.ErrChallengeMismatch):
		return http.StatusBadRequest, errorPayload{Type: "challenge_mismatch", Message: "invalid or expired challenge"}

	case errors.Is(err, webauthn.ErrVerificationFailed):
		return http.StatusUnauthorized, errorPayload{Type: "verification_failed", Message: "credential verification failed"}

	case errors.Is(err, oauth.ErrStateMismatch):
		return http.StatusBadRequest, errorPayload{Type: "state_mismatch", Message: "authorization state mismatch"}

	case errors.Is(err, oauth.ErrInvalidRequest), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request"}

	case errors.Is(err, oauth.ErrProviderNotFound):
		return http.StatusNotFound, errorPayload{Type: "provider_not_found", Message: "unknown identity provider"}

	case errors.Is(err, oauth.ErrProviderExchangeFailed),
		errors.Is(err, oauth.ErrProfileFetchFailed):
		return http.StatusBadGateway, errorPayload{Type: "provider_error", Message: "identity provider request failed"}

	case errors.Is(err, oauth.ErrNoUsableEmail):
		return http.StatusBadRequest, errorPayload{Type: "no_usable_email", Message: "identity provider returned no verified email"}

	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "account already exists"}

	case errors.Is(err, domain.ErrCannotUnlinkLastMethod):
		return http.StatusBadRequest, errorPayload{Type: "cannot_unlink_last_method", Message: "cannot remove the last sign-in method"}

	case errors.Is(err, domain.ErrInvalidResetToken):
		return http.StatusBadRequest, errorPayload{Type: "invalid_or_expired_token", Message: "invalid or expired reset token"}

	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrPasskeyNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource not found"}

	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "insufficient permissions"}

	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
