package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	historydomain "github.com/repartia/treasury/internal/history/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

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
	return invoicedomain.NewValidationError("request", "invalid request body")
}

func mapError(err error) (int, errorPayload) {
	var validation *invoicedomain.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, errorPayload{
			Code:    "VALIDATION_ERROR",
			Message: validation.Message,
			Details: map[string]any{"field": validation.Field},
		}
	}

	var notDraft *invoicedomain.NotDraftError
	if errors.As(err, &notDraft) {
		return http.StatusConflict, errorPayload{
			Code:    "INVOICE_NOT_DRAFT",
			Message: "invoice is no longer a draft",
			Details: map[string]any{"status": string(notDraft.Status)},
		}
	}

	var duplicate *invoicedomain.DuplicateInvoiceError
	if errors.As(err, &duplicate) {
		return http.StatusConflict, errorPayload{
			Code:    "DUPLICATE_INVOICE",
			Message: "an open invoice already exists for this customer and month",
			Details: map[string]any{
				"existing_id":          duplicate.ExistingID,
				"existing_full_number": duplicate.ExistingFullNumber,
			},
		}
	}

	var exceeds *paymentdomain.ExceedsTotalError
	if errors.As(err, &exceeds) {
		return http.StatusUnprocessableEntity, errorPayload{
			Code:    "PAYMENT_EXCEEDS_TOTAL",
			Message: "payment exceeds the invoice's remaining amount",
			Details: map[string]any{
				"total":     exceeds.Total.String(),
				"payment":   exceeds.Payment.String(),
				"remaining": exceeds.Remaining.String(),
			},
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		}
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound):
		return http.StatusNotFound, errorPayload{
			Code:    "INVOICE_NOT_FOUND",
			Message: "invoice not found",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Code:    "NOT_FOUND",
			Message: "not found",
		}
	case errors.Is(err, invoicedomain.ErrAlreadyRectified):
		return http.StatusConflict, errorPayload{
			Code:    "INVOICE_ALREADY_RECTIFIED",
			Message: "invoice already has a rectification",
		}
	case errors.Is(err, invoicedomain.ErrInvalidRectification):
		return http.StatusConflict, errorPayload{
			Code:    "INVALID_RECTIFICATION",
			Message: "only an issued invoice can be rectified",
		}
	case errors.Is(err, ratingdomain.ErrInsufficientData):
		return http.StatusUnprocessableEntity, errorPayload{
			Code:    "INSUFFICIENT_LOGISTICS_DATA",
			Message: "no billable delivery records for the requested period",
		}
	case errors.Is(err, taxvaultdomain.ErrVaultLocked):
		return http.StatusLocked, errorPayload{
			Code:    "TAX_VAULT_LOCKED",
			Message: "the target period is locked by a monthly close",
		}
	case errors.Is(err, taxvaultdomain.ErrMonthAlreadyClosed):
		return http.StatusConflict, errorPayload{
			Code:    "MONTH_ALREADY_CLOSED",
			Message: "period is already closed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Code:    "UNKNOWN_ERROR",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, directorydomain.ErrInvalidCustomerType),
		errors.Is(err, directorydomain.ErrInvalidName),
		errors.Is(err, directorydomain.ErrInvalidTaxID),
		errors.Is(err, directorydomain.ErrIssuerNotFound),
		errors.Is(err, directorydomain.ErrCustomerNotFound),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvoiceNotPayable),
		errors.Is(err, expensedomain.ErrInvalidExpense),
		errors.Is(err, historydomain.ErrInvalidRecord),
		errors.Is(err, ratingdomain.ErrInvalidRange),
		errors.Is(err, ratingdomain.ErrRangeOverlap),
		errors.Is(err, taxvaultdomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, taxvaultdomain.ErrEntryNotFound),
		errors.Is(err, ratingdomain.ErrRangeNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
