package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/velvetlounge/gatekeeper/internal/access"
	"github.com/velvetlounge/gatekeeper/internal/entitlement"
	invitedomain "github.com/velvetlounge/gatekeeper/internal/invite/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	"github.com/velvetlounge/gatekeeper/internal/platform"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
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
	ErrForbidden          = errors.New("forbidden")
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

// mapError separates no-op conditions (handled before this point), denied
// operations (4xx with a precise type) and transient collaborator failures
// (503) so webhook senders know whether to retry.
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

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isInvalidStateError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_state",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Code: err.Error(), Message: "invalid value"},
			},
		}
	case isTransientError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invitedomain.ErrInvalidUseLimit),
		errors.Is(err, access.ErrUnknownTier):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, memberdomain.ErrProtectedMember),
		errors.Is(err, access.ErrTargetNotBelow),
		errors.Is(err, access.ErrTierExceedsActor),
		errors.Is(err, access.ErrAdminCreationOnly),
		errors.Is(err, workflowdomain.ErrIssuerNotAllowed):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, memberdomain.ErrStaleMember),
		errors.Is(err, memberdomain.ErrMemberExists),
		errors.Is(err, invitedomain.ErrStaleToken),
		errors.Is(err, invitedomain.ErrActiveExists),
		errors.Is(err, invitedomain.ErrAlreadyConsumed):
		return true
	default:
		return false
	}
}

func isInvalidStateError(err error) bool {
	switch {
	case errors.Is(err, memberdomain.ErrNotRestricted),
		errors.Is(err, memberdomain.ErrAcceptanceWindowClosed),
		errors.Is(err, memberdomain.ErrNotReadmittable),
		errors.Is(err, memberdomain.ErrAlreadyOut),
		errors.Is(err, invitedomain.ErrTokenExpired),
		errors.Is(err, invitedomain.ErrTokenExhausted),
		errors.Is(err, invitedomain.ErrTokenRevoked),
		errors.Is(err, invitedomain.ErrTokenNotActive),
		errors.Is(err, invitedomain.ErrWrongRecipient),
		errors.Is(err, access.ErrPromotionNoOp),
		errors.Is(err, workflowdomain.ErrTierNotAssignable):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, memberdomain.ErrMemberNotFound),
		errors.Is(err, invitedomain.ErrTokenNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isTransientError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, platform.ErrNotConfigured),
		errors.Is(err, entitlement.ErrNotConfigured):
		return true
	default:
		return false
	}
}
