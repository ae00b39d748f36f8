package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	"github.com/shopspring/decimal"
)

type AddRecordRequest struct {
	IssuerID   snowflake.ID
	CustomerID snowflake.ID
	Date       time.Time
	Distance   *decimal.Decimal
	Duration   *decimal.Decimal
	OrderRef   string
}

// Reconciliation reports an invoice's order count, either taken from its
// lines or reconstructed from delivery history when the line data looks
// implausible.
type Reconciliation struct {
	OrderCount    int64 `json:"order_count"`
	Reconstructed bool  `json:"reconstructed"`
}

type Service interface {
	AddRecord(ctx context.Context, req AddRecordRequest) (DeliveryRecord, error)

	// UsageForPeriod returns a customer's raw records for a YYYY-MM period
	// in the shape the rating engine consumes.
	UsageForPeriod(ctx context.Context, issuerID, customerID snowflake.ID, period string) ([]ratingdomain.UsageRecord, error)

	// ReconcileOrderCount falls back to counting delivery records when the
	// invoice's per-unit price is implausibly high for its subtotal.
	ReconcileOrderCount(ctx context.Context, invoice *invoicedomain.Invoice) (Reconciliation, error)
}

var ErrInvalidRecord = errors.New("invalid_delivery_record")
