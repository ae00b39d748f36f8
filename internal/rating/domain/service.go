package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

// Result is a priced line set ready to drop into a draft invoice. Dropped
// counts records that matched no band and were excluded from billing.
type Result struct {
	Lines        invoicedomain.InvoiceLines `json:"lines"`
	Subtotal     decimal.Decimal            `json:"subtotal"`
	TaxBreakdown invoicedomain.TaxLines     `json:"tax_breakdown"`
	Total        decimal.Decimal            `json:"total"`
	Dropped      int                        `json:"dropped"`
}

type CreateRangeRequest struct {
	IssuerID     *snowflake.ID
	Name         string
	Kind         RangeKind
	Min          decimal.Decimal
	Max          *decimal.Decimal
	PricePerUnit decimal.Decimal
}

type UpdateRangeRequest struct {
	Name         *string
	Min          *decimal.Decimal
	Max          *decimal.Decimal
	PricePerUnit *decimal.Decimal
}

type Service interface {
	// CalculateLogistics prices raw records against the issuer's rate table,
	// producing one line per non-empty band.
	CalculateLogistics(ctx context.Context, issuerID snowflake.ID, records []UsageRecord) (Result, error)

	// CalculateMixedBilling merges a logistics result with extra service
	// lines, recomputing the aggregates over the union. Pure.
	CalculateMixedBilling(logistics Result, extra []invoicedomain.LineRequest) (Result, error)

	ListRanges(ctx context.Context, issuerID snowflake.ID, kind RangeKind) ([]RatingRange, error)
	CreateRange(ctx context.Context, req CreateRangeRequest) (RatingRange, error)
	UpdateRange(ctx context.Context, id snowflake.ID, req UpdateRangeRequest) (RatingRange, error)
	DeleteRange(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInsufficientData = errors.New("insufficient_logistics_data")
	ErrRangeNotFound    = errors.New("rating_range_not_found")
	ErrRangeOverlap     = errors.New("rating_range_overlap")
	ErrInvalidRange     = errors.New("invalid_rating_range")
)
