package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	"github.com/shopspring/decimal"
)

// LineRequest is a raw line as submitted by a caller; derived fields are
// recomputed server-side.
type LineRequest struct {
	Description  string           `json:"description"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	DiscountRate *decimal.Decimal `json:"discount_rate,omitempty"`
	TaxRate      decimal.Decimal  `json:"tax_rate"`
	RangeName    string           `json:"range_name,omitempty"`
}

type CreateDraftRequest struct {
	IssuerRef    string
	CustomerRef  string
	CustomerType directorydomain.CustomerType
	Lines        []LineRequest
	IssueDate    *time.Time
	DueDate      *time.Time
}

type UpdateDraftRequest struct {
	Lines   []LineRequest
	DueDate *time.Time
}

type CustomerStats struct {
	InvoiceCount int64           `json:"invoice_count"`
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

type Service interface {
	CreateDraft(ctx context.Context, req CreateDraftRequest, actor string) (snowflake.ID, error)
	UpdateDraft(ctx context.Context, id snowflake.ID, req UpdateDraftRequest) error
	DeleteDraft(ctx context.Context, id snowflake.ID, actor string) error

	IssueInvoice(ctx context.Context, id snowflake.ID) (Invoice, error)
	RectifyInvoice(ctx context.Context, id snowflake.ID, reason string, actor string) (Invoice, error)

	GetInvoice(ctx context.Context, id snowflake.ID) (Invoice, error)
	ListByIssuer(ctx context.Context, issuerRef string) ([]Invoice, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]Invoice, error)
	GetCustomerStats(ctx context.Context, customerID snowflake.ID) (CustomerStats, error)
}
