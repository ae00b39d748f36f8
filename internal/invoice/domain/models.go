// Package domain contains the invoice ledger models and totals arithmetic.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states. Transitions never skip
// a state and never reverse: DRAFT -> ISSUED -> RECTIFIED.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusRectified InvoiceStatus = "RECTIFIED"
)

// InvoiceType distinguishes standard invoices from rectification records.
type InvoiceType string

const (
	InvoiceTypeStandard      InvoiceType = "STANDARD"
	InvoiceTypeRectificative InvoiceType = "RECTIFICATIVE"
)

// PaymentStatus tracks how much of an issued invoice has been collected.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// InvoiceLine is a single priced position. Amount, TaxAmount and Total are
// derived from quantity/unit price and rounded to 2 places at line level;
// aggregates are never re-rounded.
type InvoiceLine struct {
	Description  string           `json:"description"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	DiscountRate *decimal.Decimal `json:"discount_rate,omitempty"`
	TaxRate      decimal.Decimal  `json:"tax_rate"`
	Amount       decimal.Decimal  `json:"amount"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
	Total        decimal.Decimal  `json:"total"`
	RangeName    string           `json:"range_name,omitempty"`
}

// TaxLine is one row of an invoice's tax breakdown, grouped by rate.
type TaxLine struct {
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxableBase decimal.Decimal `json:"taxable_base"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// InvoiceLines is stored as a JSON column.
type InvoiceLines []InvoiceLine

func (l InvoiceLines) Value() (driver.Value, error) {
	if l == nil {
		l = InvoiceLines{}
	}
	return json.Marshal(l)
}

func (l *InvoiceLines) Scan(value any) error {
	return scanJSON(value, l)
}

// TaxLines is stored as a JSON column.
type TaxLines []TaxLine

func (l TaxLines) Value() (driver.Value, error) {
	if l == nil {
		l = TaxLines{}
	}
	return json.Marshal(l)
}

func (l *TaxLines) Scan(value any) error {
	return scanJSON(value, l)
}

// Snapshot is a point-in-time party copy stored as a JSON column.
type Snapshot directorydomain.Snapshot

func (s Snapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Snapshot) Scan(value any) error {
	return scanJSON(value, s)
}

// IDList is a JSON-encoded list of snowflake IDs.
type IDList []snowflake.ID

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		l = IDList{}
	}
	return json.Marshal(l)
}

func (l *IDList) Scan(value any) error {
	return scanJSON(value, l)
}

func (l IDList) Contains(id snowflake.ID) bool {
	for _, existing := range l {
		if existing == id {
			return true
		}
	}
	return false
}

func scanJSON(value any, dest any) error {
	switch raw := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, dest)
	case string:
		if raw == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// Invoice is the central ledger entity. Once ISSUED, lines, totals, series,
// number and snapshots are immutable; only payment state and rectification
// linkage may change afterwards.
type Invoice struct {
	ID           snowflake.ID                 `gorm:"primaryKey"`
	IssuerID     snowflake.ID                 `gorm:"not null;index;uniqueIndex:ux_invoice_series_number"`
	CustomerID   snowflake.ID                 `gorm:"not null;index"`
	CustomerType directorydomain.CustomerType `gorm:"type:text;not null"`

	Series     string `gorm:"type:text;uniqueIndex:ux_invoice_series_number"`
	Number     *int64 `gorm:"uniqueIndex:ux_invoice_series_number"`
	FullNumber string `gorm:"type:text;index"`

	Status InvoiceStatus `gorm:"type:text;not null;default:'DRAFT';index"`
	Type   InvoiceType   `gorm:"type:text;not null;default:'STANDARD'"`

	Lines        InvoiceLines    `gorm:"type:jsonb;not null"`
	Subtotal     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TaxBreakdown TaxLines        `gorm:"type:jsonb;not null"`
	Total        decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	TotalPaid       decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentStatus   PaymentStatus   `gorm:"type:text;not null;default:'PENDING'"`

	CustomerSnapshot Snapshot `gorm:"type:jsonb;not null"`
	IssuerSnapshot   Snapshot `gorm:"type:jsonb;not null"`

	IssueDate time.Time `gorm:"not null;index"`
	DueDate   time.Time `gorm:"not null"`

	OriginalInvoiceID    *snowflake.ID `gorm:"index"`
	RectifyingInvoiceIDs IDList        `gorm:"type:jsonb;not null"`

	CreatedBy string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// OutputTax is the invoice's output-tax contribution: the sum of tax amounts
// across its breakdown.
func (i Invoice) OutputTax() decimal.Decimal {
	tax := decimal.Zero
	for _, line := range i.TaxBreakdown {
		tax = tax.Add(line.TaxAmount)
	}
	return tax
}
