// Package domain contains the accounts-receivable models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

// PaymentReceipt records money applied against an issued invoice. Receipts
// are never mutated after creation and are removed only when a draft
// invoice cascade-deletes.
type PaymentReceipt struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"not null;index"`
	IssuerID  snowflake.ID `gorm:"not null;index"`

	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentDate   time.Time       `gorm:"not null"`
	PaymentMethod string          `gorm:"type:text;not null"`
	Reference     string          `gorm:"type:text"`
	Notes         string          `gorm:"type:text"`

	CustomerSnapshot invoicedomain.Snapshot `gorm:"type:jsonb;not null"`

	CreatedBy string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentReceipt) TableName() string { return "payment_receipts" }

// InvoiceDebt is one outstanding invoice in the debt dashboard.
type InvoiceDebt struct {
	InvoiceID   snowflake.ID    `json:"invoice_id"`
	FullNumber  string          `json:"full_number"`
	DueDate     time.Time       `json:"due_date"`
	DaysOverdue int             `json:"days_overdue"`
	Remaining   decimal.Decimal `json:"remaining"`
}

// CustomerDebt aggregates a customer's outstanding invoices.
type CustomerDebt struct {
	CustomerID   snowflake.ID    `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	CurrentDebt  decimal.Decimal `json:"current_debt"`
	OverdueDebt  decimal.Decimal `json:"overdue_debt"`
	TotalDebt    decimal.Decimal `json:"total_debt"`
	Invoices     []InvoiceDebt   `json:"invoices"`
}

// DebtDashboard is an issuer-wide advisory projection, recomputed on demand
// and never persisted.
type DebtDashboard struct {
	IssuerID    snowflake.ID    `json:"issuer_id"`
	CurrentDebt decimal.Decimal `json:"current_debt"`
	OverdueDebt decimal.Decimal `json:"overdue_debt"`
	TotalDebt   decimal.Decimal `json:"total_debt"`
	Customers   []CustomerDebt  `json:"customers"`
}
