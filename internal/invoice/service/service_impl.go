package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	obsmetrics "github.com/repartia/treasury/internal/observability/metrics"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	pkgdb "github.com/repartia/treasury/pkg/db"
	"github.com/repartia/treasury/pkg/db/option"
	"github.com/repartia/treasury/pkg/repository"
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
	Directory  directorydomain.Service
	TaxVault   taxvaultdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.Config

	invoiceRepo repository.Repository[invoicedomain.Invoice]
	directory   directorydomain.Service
	taxVault    taxvaultdomain.Service
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Cfg,

		invoiceRepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		directory:   p.Directory,
		taxVault:    p.TaxVault,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreateDraft(ctx context.Context, req invoicedomain.CreateDraftRequest, actor string) (snowflake.ID, error) {
	issuer, err := s.directory.ResolveIssuer(ctx, req.IssuerRef)
	if err != nil {
		if errors.Is(err, directorydomain.ErrIssuerNotFound) {
			return 0, invoicedomain.NewValidationError("issuer", "issuer could not be resolved")
		}
		return 0, err
	}

	customer, err := s.directory.ResolveCustomer(ctx, req.CustomerType, req.CustomerRef)
	if err != nil {
		if errors.Is(err, directorydomain.ErrCustomerNotFound) || errors.Is(err, directorydomain.ErrInvalidCustomerType) {
			return 0, invoicedomain.NewValidationError("customer", "customer could not be resolved")
		}
		return 0, err
	}

	if len(req.Lines) == 0 {
		return 0, invoicedomain.NewValidationError("lines", "at least one line is required")
	}

	now := s.clock.Now()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	dueDate := issueDate.AddDate(0, 0, s.cfg.DueDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}

	lines, err := buildLines(req.Lines)
	if err != nil {
		return 0, err
	}
	totals := invoicedomain.ComputeTotals(lines)

	id := s.genID.Generate()
	invoice := invoicedomain.Invoice{
		ID:           id,
		IssuerID:     issuer.ID,
		CustomerID:   customer.ID,
		CustomerType: customer.Type,

		FullNumber: fmt.Sprintf("DRAFT-%s", id),

		Status: invoicedomain.InvoiceStatusDraft,
		Type:   invoicedomain.InvoiceTypeStandard,

		Lines:        lines,
		Subtotal:     totals.Subtotal,
		TaxBreakdown: totals.TaxBreakdown,
		Total:        totals.Total,

		TotalPaid:       decimal.Zero,
		RemainingAmount: totals.Total,
		PaymentStatus:   invoicedomain.PaymentStatusPending,

		CustomerSnapshot: invoicedomain.Snapshot(customer.Snapshot()),
		IssuerSnapshot:   invoicedomain.Snapshot(issuer.Snapshot()),

		IssueDate: issueDate,
		DueDate:   dueDate,

		RectifyingInvoiceIDs: invoicedomain.IDList{},

		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The period guard and the insert must not be separated by another
	// writer, so both run under the issuer lock.
	err = pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.lockIssuer(ctx, tx, issuer.ID); err != nil {
			return err
		}
		if err := s.assertNoOpenInvoice(ctx, tx, issuer.ID, customer.ID, issueDate); err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&invoice).Error
	})
	if err != nil {
		return 0, err
	}
	return invoice.ID, nil
}

func (s *Service) UpdateDraft(ctx context.Context, id snowflake.ID, req invoicedomain.UpdateDraftRequest) error {
	return pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return &invoicedomain.NotDraftError{Status: invoice.Status}
		}

		updates := map[string]any{"updated_at": s.clock.Now()}
		if req.Lines != nil {
			lines, err := buildLines(req.Lines)
			if err != nil {
				return err
			}
			totals := invoicedomain.ComputeTotals(lines)
			updates["lines"] = lines
			updates["subtotal"] = totals.Subtotal
			updates["tax_breakdown"] = totals.TaxBreakdown
			updates["total"] = totals.Total
			updates["remaining_amount"] = totals.Total
		}
		if req.DueDate != nil {
			updates["due_date"] = req.DueDate.UTC()
		}

		return tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

func (s *Service) DeleteDraft(ctx context.Context, id snowflake.ID, actor string) error {
	var deleted *invoicedomain.Invoice
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return &invoicedomain.NotDraftError{Status: invoice.Status}
		}

		// Cascade: receipts and vault linkage go before the invoice record.
		if err := tx.WithContext(ctx).
			Where("invoice_id = ?", id).
			Delete(&paymentdomain.PaymentReceipt{}).Error; err != nil {
			return err
		}
		if err := s.taxVault.RemoveInvoiceLink(ctx, tx, invoice); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Delete(&invoicedomain.Invoice{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = invoice
		return nil
	})
	if err != nil {
		return err
	}
	if deleted != nil {
		s.emitAudit(ctx, "invoice.draft_deleted", deleted, actor, nil)
	}
	return nil
}

func (s *Service) IssueInvoice(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	var issued invoicedomain.Invoice
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return &invoicedomain.NotDraftError{Status: invoice.Status}
		}

		if err := s.lockIssuer(ctx, tx, invoice.IssuerID); err != nil {
			return err
		}

		series := strconv.Itoa(invoice.IssueDate.Year())
		number, err := s.nextNumber(ctx, tx, invoice.IssuerID, series)
		if err != nil {
			return err
		}
		fullNumber := fmt.Sprintf("%s/%04d", series, number)

		now := s.clock.Now()
		if err := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"series":      series,
				"number":      number,
				"full_number": fullNumber,
				"status":      invoicedomain.InvoiceStatusIssued,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}

		invoice.Series = series
		invoice.Number = &number
		invoice.FullNumber = fullNumber
		invoice.Status = invoicedomain.InvoiceStatusIssued
		invoice.UpdatedAt = now

		if err := s.taxVault.OnInvoiceIssued(ctx, tx, invoice); err != nil {
			return err
		}

		issued = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.obsMetrics.RecordInvoiceIssued()
	s.emitAudit(ctx, "invoice.issued", &issued, issued.CreatedBy, map[string]any{
		"full_number": issued.FullNumber,
	})
	return issued, nil
}

func (s *Service) RectifyInvoice(ctx context.Context, id snowflake.ID, reason string, actor string) (invoicedomain.Invoice, error) {
	var rectifier invoicedomain.Invoice
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		original, err := s.loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		switch original.Status {
		case invoicedomain.InvoiceStatusIssued:
		case invoicedomain.InvoiceStatusRectified:
			return invoicedomain.ErrAlreadyRectified
		default:
			return invoicedomain.ErrInvalidRectification
		}
		if len(original.RectifyingInvoiceIDs) > 0 {
			return invoicedomain.ErrAlreadyRectified
		}

		if err := s.lockIssuer(ctx, tx, original.IssuerID); err != nil {
			return err
		}

		now := s.clock.Now()
		series := fmt.Sprintf("R%d", now.Year())
		number, err := s.nextNumber(ctx, tx, original.IssuerID, series)
		if err != nil {
			return err
		}

		mirror := negateLines(original.Lines)
		totals := invoicedomain.ComputeTotals(mirror)

		newID := s.genID.Generate()
		originalID := original.ID
		next := invoicedomain.Invoice{
			ID:           newID,
			IssuerID:     original.IssuerID,
			CustomerID:   original.CustomerID,
			CustomerType: original.CustomerType,

			Series:     series,
			Number:     &number,
			FullNumber: fmt.Sprintf("%s/%04d", series, number),

			// Rectifications are issued directly; there is no draft phase.
			Status: invoicedomain.InvoiceStatusIssued,
			Type:   invoicedomain.InvoiceTypeRectificative,

			Lines:        mirror,
			Subtotal:     totals.Subtotal,
			TaxBreakdown: totals.TaxBreakdown,
			Total:        totals.Total,

			TotalPaid: decimal.Zero,
			// The negative total represents a credit owed back.
			RemainingAmount: totals.Total,
			PaymentStatus:   invoicedomain.PaymentStatusPending,

			CustomerSnapshot: original.CustomerSnapshot,
			IssuerSnapshot:   original.IssuerSnapshot,

			IssueDate: now,
			DueDate:   now,

			OriginalInvoiceID:    &originalID,
			RectifyingInvoiceIDs: invoicedomain.IDList{},

			CreatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.WithContext(ctx).Create(&next).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ?", original.ID).
			Updates(map[string]any{
				"status":                 invoicedomain.InvoiceStatusRectified,
				"rectifying_invoice_ids": invoicedomain.IDList{newID},
				"updated_at":             now,
			}).Error; err != nil {
			return err
		}

		if err := s.taxVault.OnInvoiceRectified(ctx, tx, &next); err != nil {
			return err
		}

		rectifier = next
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.obsMetrics.RecordInvoiceRectified()
	s.emitAudit(ctx, "invoice.rectified", &rectifier, actor, map[string]any{
		"reason":      reason,
		"original_id": rectifier.OriginalInvoiceID.String(),
	})
	return rectifier, nil
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) ListByIssuer(ctx context.Context, issuerRef string) ([]invoicedomain.Invoice, error) {
	issuer, err := s.directory.ResolveIssuer(ctx, issuerRef)
	if err != nil {
		return nil, err
	}

	items, err := s.invoiceRepo.Find(ctx, &invoicedomain.Invoice{IssuerID: issuer.ID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true, Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return nil, err
	}
	return dereference(items), nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]invoicedomain.Invoice, error) {
	items, err := s.invoiceRepo.Find(ctx, &invoicedomain.Invoice{CustomerID: customerID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true, Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return nil, err
	}
	return dereference(items), nil
}

func (s *Service) GetCustomerStats(ctx context.Context, customerID snowflake.ID) (invoicedomain.CustomerStats, error) {
	var row struct {
		InvoiceCount int64
		TotalBilled  decimal.Decimal
		TotalPaid    decimal.Decimal
		Outstanding  decimal.Decimal
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS invoice_count,
		        COALESCE(SUM(total), 0) AS total_billed,
		        COALESCE(SUM(total_paid), 0) AS total_paid,
		        COALESCE(SUM(remaining_amount), 0) AS outstanding
		 FROM invoices
		 WHERE customer_id = ? AND status IN (?, ?)`,
		customerID,
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusRectified,
	).Scan(&row).Error
	if err != nil {
		return invoicedomain.CustomerStats{}, err
	}
	return invoicedomain.CustomerStats{
		InvoiceCount: row.InvoiceCount,
		TotalBilled:  row.TotalBilled,
		TotalPaid:    row.TotalPaid,
		Outstanding:  row.Outstanding,
	}, nil
}

// assertNoOpenInvoice rejects a second DRAFT or ISSUED standard invoice for
// one (issuer, customer, calendar month). Callers hold the issuer lock so the
// read stays valid until their transaction commits.
func (s *Service) assertNoOpenInvoice(ctx context.Context, tx *gorm.DB, issuerID, customerID snowflake.ID, issueDate time.Time) error {
	monthStart := time.Date(issueDate.Year(), issueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var existing invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("issuer_id = ? AND customer_id = ?", issuerID, customerID).
		Where("type = ?", invoicedomain.InvoiceTypeStandard).
		Where("status IN (?, ?)", invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusIssued).
		Where("issue_date >= ? AND issue_date < ?", monthStart, monthEnd).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return &invoicedomain.DuplicateInvoiceError{
		ExistingID:         existing.ID.String(),
		ExistingFullNumber: existing.FullNumber,
	}
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := pkgdb.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// lockIssuer serializes concurrent number assignment for one issuer so the
// MAX+1 read below can never observe a stale counter.
func (s *Service) lockIssuer(ctx context.Context, tx *gorm.DB, issuerID snowflake.ID) error {
	var issuer directorydomain.Issuer
	err := pkgdb.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", issuerID).
		First(&issuer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.NewValidationError("issuer", "issuer no longer exists")
		}
		return err
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, issuerID snowflake.ID, series string) (int64, error) {
	var max int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(number), 0)
		 FROM invoices
		 WHERE issuer_id = ? AND series = ? AND number IS NOT NULL`,
		issuerID,
		series,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, actor string, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"customer_id": invoice.CustomerID.String(),
		"subtotal":    invoice.Subtotal.String(),
		"total":       invoice.Total.String(),
		"status":      string(invoice.Status),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	issuerID := invoice.IssuerID
	if err := s.auditSvc.AuditLog(ctx, &issuerID, actor, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write invoice audit log", zap.String("action", action), zap.Error(err))
	}
}

func buildLines(requests []invoicedomain.LineRequest) (invoicedomain.InvoiceLines, error) {
	lines := make(invoicedomain.InvoiceLines, 0, len(requests))
	for _, req := range requests {
		if req.Quantity.IsNegative() || req.Quantity.IsZero() {
			return nil, invoicedomain.NewValidationError("lines", "line quantity must be positive")
		}
		if req.TaxRate.IsNegative() {
			return nil, invoicedomain.NewValidationError("lines", "line tax rate must not be negative")
		}
		lines = append(lines, invoicedomain.ComputeLine(invoicedomain.InvoiceLine{
			Description:  req.Description,
			Quantity:     req.Quantity,
			UnitPrice:    req.UnitPrice,
			DiscountRate: req.DiscountRate,
			TaxRate:      req.TaxRate,
			RangeName:    req.RangeName,
		}))
	}
	return lines, nil
}

func negateLines(lines invoicedomain.InvoiceLines) invoicedomain.InvoiceLines {
	mirror := make(invoicedomain.InvoiceLines, 0, len(lines))
	for _, line := range lines {
		line.Amount = line.Amount.Neg()
		line.TaxAmount = line.TaxAmount.Neg()
		line.Total = line.Total.Neg()
		mirror = append(mirror, line)
	}
	return mirror
}

func dereference(items []*invoicedomain.Invoice) []invoicedomain.Invoice {
	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoices
}
