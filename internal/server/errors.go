package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/rangefront/armory/internal/checkout/domain"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	holdsdomain "github.com/rangefront/armory/internal/holds/domain"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
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
	ErrConflict       = errors.New("conflict")
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

	var itemsErr *snapshotdomain.InvalidItemsError
	if errors.As(err, &itemsErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrors(itemsErr.Fields, "required"),
		}
	}

	// The snapshot exists but still cannot be rendered after enrichment.
	var summaryErr *snapshotdomain.SummaryValidationError
	if errors.As(err, &summaryErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: "order summary cannot be rendered",
			Errors:  fieldErrors(summaryErr.Fields, "unresolved"),
		}
	}

	var payErr *checkoutdomain.PaymentError
	if errors.As(err, &payErr) {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: payErr.Reason,
		}
	}

	if isValidationError(err) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "request",
					Code:    err.Error(),
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, compliancedomain.ErrNoActiveConfig):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "compliance configuration unavailable",
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
		errors.Is(err, compliancedomain.ErrEmptyCart),
		errors.Is(err, compliancedomain.ErrInvalidQuantity),
		errors.Is(err, compliancedomain.ErrInvalidUnitPrice),
		errors.Is(err, compliancedomain.ErrInvalidConfig),
		errors.Is(err, compliancedomain.ErrUnknownUser),
		errors.Is(err, ffldomain.ErrInvalidRecord),
		errors.Is(err, holdsdomain.ErrReasonRequired),
		errors.Is(err, orderdomain.ErrInvalidID),
		errors.Is(err, snapshotdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, checkoutdomain.ErrCheckoutBusy),
		errors.Is(err, holdsdomain.ErrNotPendingFFL),
		errors.Is(err, holdsdomain.ErrNotOnHold),
		errors.Is(err, orderdomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, snapshotdomain.ErrNotFound),
		errors.Is(err, ffldomain.ErrDealerNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func fieldErrors(fields []string, code string) []ValidationError {
	out := make([]ValidationError, 0, len(fields))
	for _, field := range fields {
		out = append(out, ValidationError{
			Field:   field,
			Code:    code,
			Message: "invalid value",
		})
	}
	return out
}
