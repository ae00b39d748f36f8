package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateExpenseRequest struct {
	IssuerID  snowflake.ID
	Date      *time.Time
	Category  string
	Amount    decimal.Decimal
	TaxAmount decimal.Decimal
}

type Service interface {
	// CreateExpense persists the expense and accumulates its input tax into
	// the period's vault entry in the same transaction.
	CreateExpense(ctx context.Context, req CreateExpenseRequest, actor string) (Expense, error)
	ListByPeriod(ctx context.Context, issuerID snowflake.ID, period string) ([]Expense, error)
}

var ErrInvalidExpense = errors.New("invalid_expense")
