package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/identity"
	offeringdomain "github.com/mentorlane/mentorlane/internal/offering/domain"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
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
	ErrTooManyCreates = errors.New("too_many_booking_attempts")
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

// mapError is the single place domain sentinels become HTTP statuses. No
// internal detail leaks into the response body.
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
	case errors.Is(err, bookingdomain.ErrInvalidTimeRange),
		errors.Is(err, bookingdomain.ErrOfferingInactive),
		errors.Is(err, offeringdomain.ErrOfferingInactive),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "request", Code: err.Error(), Message: "invalid value"},
			},
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "signature_error",
			Message: "invalid signature",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, bookingdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrTooManyCreates):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many booking attempts",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "external_error",
			Message: "payment provider unavailable",
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
	switch {
	case errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, offeringdomain.ErrNotFound),
		errors.Is(err, slotdomain.ErrSlotNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// Slot contention, duplicate bookings and lost transition races are all
// conflicts: the request was well-formed but the current state refuses it.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, bookingdomain.ErrWrongStatus),
		errors.Is(err, bookingdomain.ErrSlotUnavailable),
		errors.Is(err, bookingdomain.ErrDuplicateBooking),
		errors.Is(err, slotdomain.ErrSlotUnavailable):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, bookingdomain.ErrSlotUnavailable),
		errors.Is(err, slotdomain.ErrSlotUnavailable):
		return "slot unavailable"
	case errors.Is(err, bookingdomain.ErrDuplicateBooking):
		return "duplicate booking"
	case errors.Is(err, bookingdomain.ErrWrongStatus):
		return "wrong status"
	default:
		return "conflict"
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "incident", payload.Type
	}
	return "expected", payload.Type
}
