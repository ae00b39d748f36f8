package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	"gorm.io/gorm"
)

type Service interface {
	// OnInvoiceIssued and OnInvoiceRectified accumulate an invoice's
	// output-tax contribution inside the caller's transaction, so a locked
	// period aborts the whole issuance.
	OnInvoiceIssued(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error
	OnInvoiceRectified(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error

	OnExpenseCreated(ctx context.Context, tx *gorm.DB, expense *expensedomain.Expense) error

	// RemoveInvoiceLink strips a deleted invoice from an unlocked entry's
	// contribution list. Draft cascade path; no-op when never linked.
	RemoveInvoiceLink(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error

	GetEntry(ctx context.Context, issuerID snowflake.ID, period string) (VaultEntry, error)
	ExecuteMonthlyClose(ctx context.Context, issuerID snowflake.ID, period string, actor string) (CloseSummary, error)
	RecalculateMonth(ctx context.Context, issuerID snowflake.ID, period string) (VaultEntry, error)

	// RequestUnlock records a governance unlock request in the audit log.
	// It never unlocks anything itself.
	RequestUnlock(ctx context.Context, issuerID snowflake.ID, period string, actor string, reason string) error
}

var (
	ErrVaultLocked        = errors.New("tax_vault_locked")
	ErrMonthAlreadyClosed = errors.New("month_already_closed")
	ErrEntryNotFound      = errors.New("tax_vault_entry_not_found")
)
