package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	obsmetrics "github.com/repartia/treasury/internal/observability/metrics"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	pkgdb "github.com/repartia/treasury/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	irpfRate   decimal.Decimal
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) taxvaultdomain.Service {
	rate, err := decimal.NewFromString(p.Cfg.IRPFRate)
	if err != nil {
		rate = decimal.RequireFromString("0.15")
		p.Log.Warn("invalid IRPF rate, using default",
			zap.String("configured", p.Cfg.IRPFRate),
			zap.String("default", rate.String()))
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("taxvault.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		irpfRate:   rate,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) OnInvoiceIssued(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	return s.accumulateInvoice(ctx, tx, invoice)
}

func (s *Service) OnInvoiceRectified(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	// The rectifier carries negated amounts, so accumulation nets the
	// original contribution out of the same or a later period.
	return s.accumulateInvoice(ctx, tx, invoice)
}

func (s *Service) accumulateInvoice(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	period := taxvaultdomain.PeriodOf(invoice.IssueDate)
	entry, err := s.loadOrCreateEntry(ctx, tx, invoice.IssuerID, period)
	if err != nil {
		return err
	}
	if entry.IsLocked {
		return taxvaultdomain.ErrVaultLocked
	}

	entry.IvaRepercutido = entry.IvaRepercutido.Add(invoice.OutputTax())
	entry.IrpfReserva = entry.IrpfReserva.Add(invoice.Subtotal.Mul(s.irpfRate).Round(2))
	if !entry.InvoiceIDs.Contains(invoice.ID) {
		entry.InvoiceIDs = append(entry.InvoiceIDs, invoice.ID)
	}
	return s.saveEntry(ctx, tx, entry)
}

func (s *Service) OnExpenseCreated(ctx context.Context, tx *gorm.DB, expense *expensedomain.Expense) error {
	period := taxvaultdomain.PeriodOf(expense.Date)
	entry, err := s.loadOrCreateEntry(ctx, tx, expense.IssuerID, period)
	if err != nil {
		return err
	}
	if entry.IsLocked {
		return taxvaultdomain.ErrVaultLocked
	}

	entry.IvaSoportado = entry.IvaSoportado.Add(expense.TaxAmount)
	if !entry.ExpenseIDs.Contains(expense.ID) {
		entry.ExpenseIDs = append(entry.ExpenseIDs, expense.ID)
	}
	return s.saveEntry(ctx, tx, entry)
}

func (s *Service) RemoveInvoiceLink(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	period := taxvaultdomain.PeriodOf(invoice.IssueDate)
	entry, err := s.findEntryForUpdate(ctx, tx, invoice.IssuerID, period)
	if err != nil {
		return err
	}
	if entry == nil || !entry.InvoiceIDs.Contains(invoice.ID) {
		return nil
	}
	if entry.IsLocked {
		return taxvaultdomain.ErrVaultLocked
	}

	entry.IvaRepercutido = entry.IvaRepercutido.Sub(invoice.OutputTax())
	entry.IrpfReserva = entry.IrpfReserva.Sub(invoice.Subtotal.Mul(s.irpfRate).Round(2))
	kept := make(invoicedomain.IDList, 0, len(entry.InvoiceIDs))
	for _, id := range entry.InvoiceIDs {
		if id != invoice.ID {
			kept = append(kept, id)
		}
	}
	entry.InvoiceIDs = kept
	return s.saveEntry(ctx, tx, entry)
}

func (s *Service) GetEntry(ctx context.Context, issuerID snowflake.ID, period string) (taxvaultdomain.VaultEntry, error) {
	if _, err := taxvaultdomain.ParsePeriod(period); err != nil {
		return taxvaultdomain.VaultEntry{}, err
	}

	var entry taxvaultdomain.VaultEntry
	err := s.db.WithContext(ctx).
		Where("issuer_id = ? AND period = ?", issuerID, period).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return taxvaultdomain.VaultEntry{}, taxvaultdomain.ErrEntryNotFound
		}
		return taxvaultdomain.VaultEntry{}, err
	}
	return entry, nil
}

func (s *Service) ExecuteMonthlyClose(ctx context.Context, issuerID snowflake.ID, period string, actor string) (taxvaultdomain.CloseSummary, error) {
	var summary taxvaultdomain.CloseSummary
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		entry, err := s.loadOrCreateEntry(ctx, tx, issuerID, period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return taxvaultdomain.ErrMonthAlreadyClosed
		}

		// Closing recomputes from source rows rather than trusting the
		// accumulated figures, then locks the period.
		recomputed, err := s.recompute(ctx, tx, issuerID, period)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entry.IvaRepercutido = recomputed.ivaRepercutido
		entry.IvaSoportado = recomputed.ivaSoportado
		entry.IrpfReserva = recomputed.irpfReserva
		entry.InvoiceIDs = recomputed.invoiceIDs
		entry.ExpenseIDs = recomputed.expenseIDs
		entry.IsLocked = true
		entry.LockedAt = &now
		entry.LockedBy = actor
		if err := s.saveEntry(ctx, tx, entry); err != nil {
			return err
		}

		summary = taxvaultdomain.CloseSummary{
			Period:        period,
			TotalInvoices: recomputed.invoiceCount,
			TotalIncome:   recomputed.income,
			TotalExpenses: recomputed.expenses,
			TotalTax:      entry.IvaRepercutido.Sub(entry.IvaSoportado).Add(entry.IrpfReserva),
		}
		return nil
	})
	if err != nil {
		return taxvaultdomain.CloseSummary{}, err
	}

	s.obsMetrics.RecordMonthlyClose()
	s.emitAudit(ctx, issuerID, actor, "taxvault.month_closed", period, map[string]any{
		"total_invoices": summary.TotalInvoices,
		"total_tax":      summary.TotalTax.String(),
	})
	return summary, nil
}

func (s *Service) RecalculateMonth(ctx context.Context, issuerID snowflake.ID, period string) (taxvaultdomain.VaultEntry, error) {
	var result taxvaultdomain.VaultEntry
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		entry, err := s.loadOrCreateEntry(ctx, tx, issuerID, period)
		if err != nil {
			return err
		}
		if entry.IsLocked {
			return taxvaultdomain.ErrVaultLocked
		}

		recomputed, err := s.recompute(ctx, tx, issuerID, period)
		if err != nil {
			return err
		}
		entry.IvaRepercutido = recomputed.ivaRepercutido
		entry.IvaSoportado = recomputed.ivaSoportado
		entry.IrpfReserva = recomputed.irpfReserva
		entry.InvoiceIDs = recomputed.invoiceIDs
		entry.ExpenseIDs = recomputed.expenseIDs
		if err := s.saveEntry(ctx, tx, entry); err != nil {
			return err
		}
		result = *entry
		return nil
	})
	if err != nil {
		return taxvaultdomain.VaultEntry{}, err
	}
	return result, nil
}

func (s *Service) RequestUnlock(ctx context.Context, issuerID snowflake.ID, period string, actor string, reason string) error {
	entry, err := s.GetEntry(ctx, issuerID, period)
	if err != nil {
		return err
	}
	if !entry.IsLocked {
		return taxvaultdomain.ErrEntryNotFound
	}
	s.emitAudit(ctx, issuerID, actor, "taxvault.unlock_requested", period, map[string]any{
		"reason":    reason,
		"locked_by": entry.LockedBy,
	})
	return nil
}

type recomputation struct {
	ivaRepercutido decimal.Decimal
	ivaSoportado   decimal.Decimal
	irpfReserva    decimal.Decimal
	invoiceCount   int64
	income         decimal.Decimal
	expenses       decimal.Decimal
	invoiceIDs     invoicedomain.IDList
	expenseIDs     invoicedomain.IDList
}

// recompute rebuilds a period's figures from the legally issued invoices and
// the expense rows dated inside it. Rectified originals stay in because their
// rectifiers carry the negation.
func (s *Service) recompute(ctx context.Context, tx *gorm.DB, issuerID snowflake.ID, period string) (recomputation, error) {
	start, end, err := taxvaultdomain.PeriodBounds(period)
	if err != nil {
		return recomputation{}, err
	}

	out := recomputation{
		ivaRepercutido: decimal.Zero,
		ivaSoportado:   decimal.Zero,
		irpfReserva:    decimal.Zero,
		income:         decimal.Zero,
		expenses:       decimal.Zero,
		invoiceIDs:     invoicedomain.IDList{},
		expenseIDs:     invoicedomain.IDList{},
	}

	var invoices []invoicedomain.Invoice
	err = tx.WithContext(ctx).
		Where("issuer_id = ?", issuerID).
		Where("status IN (?, ?)", invoicedomain.InvoiceStatusIssued, invoicedomain.InvoiceStatusRectified).
		Where("issue_date >= ? AND issue_date < ?", start, end).
		Order("number ASC").
		Find(&invoices).Error
	if err != nil {
		return recomputation{}, err
	}
	for _, invoice := range invoices {
		out.invoiceCount++
		out.income = out.income.Add(invoice.Subtotal)
		out.ivaRepercutido = out.ivaRepercutido.Add(invoice.OutputTax())
		out.irpfReserva = out.irpfReserva.Add(invoice.Subtotal.Mul(s.irpfRate).Round(2))
		out.invoiceIDs = append(out.invoiceIDs, invoice.ID)
	}

	var expenses []expensedomain.Expense
	err = tx.WithContext(ctx).
		Where("issuer_id = ?", issuerID).
		Where("date >= ? AND date < ?", start, end).
		Order("date ASC").
		Find(&expenses).Error
	if err != nil {
		return recomputation{}, err
	}
	for _, expense := range expenses {
		out.expenses = out.expenses.Add(expense.Amount)
		out.ivaSoportado = out.ivaSoportado.Add(expense.TaxAmount)
		out.expenseIDs = append(out.expenseIDs, expense.ID)
	}

	return out, nil
}

func (s *Service) findEntryForUpdate(ctx context.Context, tx *gorm.DB, issuerID snowflake.ID, period string) (*taxvaultdomain.VaultEntry, error) {
	var entry taxvaultdomain.VaultEntry
	err := pkgdb.ForUpdate(tx.WithContext(ctx)).
		Where("issuer_id = ? AND period = ?", issuerID, period).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Service) loadOrCreateEntry(ctx context.Context, tx *gorm.DB, issuerID snowflake.ID, period string) (*taxvaultdomain.VaultEntry, error) {
	if _, err := taxvaultdomain.ParsePeriod(period); err != nil {
		return nil, err
	}

	entry, err := s.findEntryForUpdate(ctx, tx, issuerID, period)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	now := s.clock.Now()
	fresh := taxvaultdomain.VaultEntry{
		ID:             s.genID.Generate(),
		IssuerID:       issuerID,
		Period:         period,
		IvaRepercutido: decimal.Zero,
		IvaSoportado:   decimal.Zero,
		IrpfReserva:    decimal.Zero,
		InvoiceIDs:     invoicedomain.IDList{},
		ExpenseIDs:     invoicedomain.IDList{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(&fresh).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Lost the race to another transaction; reload its row.
			return s.findEntryForUpdate(ctx, tx, issuerID, period)
		}
		return nil, err
	}
	return &fresh, nil
}

func (s *Service) saveEntry(ctx context.Context, tx *gorm.DB, entry *taxvaultdomain.VaultEntry) error {
	entry.UpdatedAt = s.clock.Now()
	return tx.WithContext(ctx).Model(&taxvaultdomain.VaultEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"iva_repercutido": entry.IvaRepercutido,
			"iva_soportado":   entry.IvaSoportado,
			"irpf_reserva":    entry.IrpfReserva,
			"invoice_ids":     entry.InvoiceIDs,
			"expense_ids":     entry.ExpenseIDs,
			"is_locked":       entry.IsLocked,
			"locked_at":       entry.LockedAt,
			"locked_by":       entry.LockedBy,
			"updated_at":      entry.UpdatedAt,
		}).Error
}

func (s *Service) emitAudit(ctx context.Context, issuerID snowflake.ID, actor, action, period string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["period"] = period
	targetID := period
	if err := s.auditSvc.AuditLog(ctx, &issuerID, actor, action, "tax_vault", &targetID, metadata); err != nil {
		s.log.Warn("failed to write tax vault audit log", zap.String("action", action), zap.Error(err))
	}
}
