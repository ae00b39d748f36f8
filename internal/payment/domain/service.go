package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type AddPaymentRequest struct {
	InvoiceID     snowflake.ID
	Amount        decimal.Decimal
	PaymentMethod string
	PaymentDate   *time.Time
	Reference     string
	Notes         string
}

type Service interface {
	// AddPayment is the only path that mutates an invoice's totalPaid and
	// remainingAmount.
	AddPayment(ctx context.Context, req AddPaymentRequest, actor string) (PaymentReceipt, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]PaymentReceipt, error)
	GetDebtDashboard(ctx context.Context, issuerRef string) (DebtDashboard, error)
}

var (
	ErrInvalidAmount     = errors.New("invalid_payment_amount")
	ErrInvoiceNotPayable = errors.New("invoice_not_payable")
)

// ExceedsTotalError reports a payment larger than the invoice's remaining
// amount, carrying the figures the caller needs to correct it.
type ExceedsTotalError struct {
	Total     decimal.Decimal
	Payment   decimal.Decimal
	Remaining decimal.Decimal
}

func (e *ExceedsTotalError) Error() string {
	return fmt.Sprintf("payment_exceeds_total: payment %s exceeds remaining %s of total %s",
		e.Payment, e.Remaining, e.Total)
}
