package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrAlreadyRectified     = errors.New("invoice_already_rectified")
	ErrInvalidRectification = errors.New("invalid_rectification")
)

// NotDraftError reports an operation that requires a DRAFT invoice, carrying
// the status the invoice had instead.
type NotDraftError struct {
	Status InvoiceStatus
}

func (e *NotDraftError) Error() string {
	return fmt.Sprintf("invoice_not_draft: status is %s", e.Status)
}

// DuplicateInvoiceError reports the duplicate-period guard: an open invoice
// already exists for the same issuer, customer and calendar month.
type DuplicateInvoiceError struct {
	ExistingID         string
	ExistingFullNumber string
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("duplicate_invoice: open invoice %s exists for this period", e.ExistingFullNumber)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation_error: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
