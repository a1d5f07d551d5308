package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/auth/session"
	tokenprovider "github.com/smallbiznis/posbridge/internal/auth/token"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	authz "github.com/smallbiznis/posbridge/internal/authorization"
	"github.com/smallbiznis/posbridge/internal/pipeline"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	providerdomain "github.com/smallbiznis/posbridge/internal/provider/domain"
	"github.com/smallbiznis/posbridge/internal/scheduler"
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	if sentinel := validationSentinel(err); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	// POS mapping gaps are an operator problem, the message names what to fill in.
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "configuration_error",
			Message: cfgErr.Error(),
		}
	}

	var authErr *providerdomain.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, errorPayload{
			Type:    "provider_auth_failed",
			Message: authErr.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, authz.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, appuserdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_credentials",
			Message: "invalid username or password",
		}
	case errors.Is(err, appuserdomain.ErrUserInactive):
		return http.StatusForbidden, errorPayload{
			Type:    "user_inactive",
			Message: "user is inactive",
		}
	case errors.Is(err, ErrPasswordChangeRequired):
		return http.StatusForbidden, errorPayload{
			Type:    "password_change_required",
			Message: "password must be changed before continuing",
		}
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, appuserdomain.ErrUsernameTaken):
		return http.StatusConflict, errorPayload{
			Type:    "username_taken",
			Message: "username is already taken",
		}
	case errors.Is(err, appuserdomain.ErrLastAdmin):
		return http.StatusConflict, errorPayload{
			Type:    "last_active_admin",
			Message: "at least one active admin must remain",
		}
	case errors.Is(err, scheduler.ErrNeedsCredentials):
		return http.StatusConflict, errorPayload{
			Type:    "credentials_required",
			Message: "profile needs a token or a verification code",
		}
	case errors.Is(err, scheduler.ErrProfileBusy):
		return http.StatusConflict, errorPayload{
			Type:    "sync_in_progress",
			Message: "profile is already syncing",
		}
	case errors.Is(err, scheduler.ErrProfileInactive):
		return http.StatusConflict, errorPayload{
			Type:    "profile_inactive",
			Message: "profile is inactive",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, providerdomain.ErrUnsupported):
		return http.StatusNotImplemented, errorPayload{
			Type:    "unsupported_operation",
			Message: "provider does not support this operation",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, ErrInternal) {
		return payload.Type, err.Error()
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	profiledomain.ErrInvalidID,
	profiledomain.ErrInvalidName,
	profiledomain.ErrInvalidProvider,
	billingdomain.ErrInvalidKind,
	billingdomain.ErrInvalidPeriodKey,
	billingdomain.ErrNegativePrice,
	billingdomain.ErrInvalidCurrency,
	providerdomain.ErrUnknownType,
	tokenprovider.ErrMissingIdentity,
	appuserdomain.ErrInvalidID,
	appuserdomain.ErrInvalidUsername,
	appuserdomain.ErrInvalidPassword,
	appuserdomain.ErrInvalidRole,
}

// validationSentinel returns the domain error err wraps, if it is a caller mistake.
func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, appuserdomain.ErrNotFound),
		errors.Is(err, billingdomain.ErrPeriodNotClosed),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "negative_price":
		return "price"
	case "missing_login_identity":
		return "login"
	case "unknown_provider_type":
		return "provider_type"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_login_identity":
		return "profile has no login email or phone"
	default:
		return "invalid value"
	}
}
