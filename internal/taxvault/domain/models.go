// Package domain contains the per-period tax liability vault models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

// VaultEntry accumulates a month's tax liabilities for one issuer. Created
// lazily on first contribution; once IsLocked is set by a monthly close, all
// further accumulation is rejected until a governance unlock.
type VaultEntry struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	IssuerID snowflake.ID `gorm:"not null;uniqueIndex:ux_vault_issuer_period"`
	Period   string       `gorm:"type:text;not null;uniqueIndex:ux_vault_issuer_period"`

	IvaRepercutido decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	IvaSoportado   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	IrpfReserva    decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	IsLocked bool       `gorm:"not null;default:false"`
	LockedAt *time.Time `gorm:""`
	LockedBy string     `gorm:"type:text"`

	InvoiceIDs invoicedomain.IDList `gorm:"type:jsonb;not null"`
	ExpenseIDs invoicedomain.IDList `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (VaultEntry) TableName() string { return "tax_vault_entries" }

// CloseSummary is returned by a monthly close.
type CloseSummary struct {
	Period        string          `json:"period"`
	TotalInvoices int64           `json:"total_invoices"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	TotalTax      decimal.Decimal `json:"total_tax"`
}
