package service

import (
	"context"
	"errors"
	"sort"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/clock"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	obsmetrics "github.com/repartia/treasury/internal/observability/metrics"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
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
	Directory  directorydomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	directory  directorydomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		directory:  p.Directory,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AddPayment(ctx context.Context, req paymentdomain.AddPaymentRequest, actor string) (paymentdomain.PaymentReceipt, error) {
	if !req.Amount.IsPositive() {
		return paymentdomain.PaymentReceipt{}, paymentdomain.ErrInvalidAmount
	}

	var receipt paymentdomain.PaymentReceipt
	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var invoice invoicedomain.Invoice
		err := pkgdb.ForUpdate(tx.WithContext(ctx)).
			Where("id = ?", req.InvoiceID).
			First(&invoice).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invoicedomain.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusIssued {
			return paymentdomain.ErrInvoiceNotPayable
		}
		if req.Amount.GreaterThan(invoice.RemainingAmount) {
			return &paymentdomain.ExceedsTotalError{
				Total:     invoice.Total,
				Payment:   req.Amount,
				Remaining: invoice.RemainingAmount,
			}
		}

		now := s.clock.Now()
		paymentDate := now
		if req.PaymentDate != nil {
			paymentDate = req.PaymentDate.UTC()
		}

		totalPaid := invoice.TotalPaid.Add(req.Amount)
		remaining := invoice.Total.Sub(totalPaid)
		status := invoicedomain.PaymentStatusPartial
		if remaining.IsZero() {
			status = invoicedomain.PaymentStatusPaid
		}

		receipt = paymentdomain.PaymentReceipt{
			ID:               s.genID.Generate(),
			InvoiceID:        invoice.ID,
			IssuerID:         invoice.IssuerID,
			Amount:           req.Amount,
			PaymentDate:      paymentDate,
			PaymentMethod:    req.PaymentMethod,
			Reference:        req.Reference,
			Notes:            req.Notes,
			CustomerSnapshot: invoice.CustomerSnapshot,
			CreatedBy:        actor,
			CreatedAt:        now,
		}
		if err := tx.WithContext(ctx).Create(&receipt).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"total_paid":       totalPaid,
				"remaining_amount": remaining,
				"payment_status":   status,
				"updated_at":       now,
			}).Error
	})
	if err != nil {
		return paymentdomain.PaymentReceipt{}, err
	}

	s.obsMetrics.RecordPaymentApplied()
	s.emitAudit(ctx, &receipt, actor)
	return receipt, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.PaymentReceipt, error) {
	var receipts []paymentdomain.PaymentReceipt
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// GetDebtDashboard recomputes the issuer's receivables from issued invoices
// with money outstanding. Nothing here is persisted.
func (s *Service) GetDebtDashboard(ctx context.Context, issuerRef string) (paymentdomain.DebtDashboard, error) {
	issuer, err := s.directory.ResolveIssuer(ctx, issuerRef)
	if err != nil {
		return paymentdomain.DebtDashboard{}, err
	}

	var invoices []invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Where("issuer_id = ?", issuer.ID).
		Where("status = ?", invoicedomain.InvoiceStatusIssued).
		Where("remaining_amount > 0").
		Order("due_date ASC").
		Find(&invoices).Error
	if err != nil {
		return paymentdomain.DebtDashboard{}, err
	}

	now := s.clock.Now()
	dashboard := paymentdomain.DebtDashboard{
		IssuerID:    issuer.ID,
		CurrentDebt: decimal.Zero,
		OverdueDebt: decimal.Zero,
		TotalDebt:   decimal.Zero,
		Customers:   []paymentdomain.CustomerDebt{},
	}
	byCustomer := map[snowflake.ID]int{}

	for _, invoice := range invoices {
		at, ok := byCustomer[invoice.CustomerID]
		if !ok {
			byCustomer[invoice.CustomerID] = len(dashboard.Customers)
			dashboard.Customers = append(dashboard.Customers, paymentdomain.CustomerDebt{
				CustomerID:   invoice.CustomerID,
				CustomerName: invoice.CustomerSnapshot.Name,
				CurrentDebt:  decimal.Zero,
				OverdueDebt:  decimal.Zero,
				TotalDebt:    decimal.Zero,
				Invoices:     []paymentdomain.InvoiceDebt{},
			})
			at = byCustomer[invoice.CustomerID]
		}

		daysOverdue := 0
		overdue := invoice.DueDate.Before(now)
		if overdue {
			daysOverdue = int(now.Sub(invoice.DueDate).Hours() / 24)
		}

		customer := &dashboard.Customers[at]
		customer.Invoices = append(customer.Invoices, paymentdomain.InvoiceDebt{
			InvoiceID:   invoice.ID,
			FullNumber:  invoice.FullNumber,
			DueDate:     invoice.DueDate,
			DaysOverdue: daysOverdue,
			Remaining:   invoice.RemainingAmount,
		})
		customer.TotalDebt = customer.TotalDebt.Add(invoice.RemainingAmount)
		dashboard.TotalDebt = dashboard.TotalDebt.Add(invoice.RemainingAmount)
		if overdue {
			customer.OverdueDebt = customer.OverdueDebt.Add(invoice.RemainingAmount)
			dashboard.OverdueDebt = dashboard.OverdueDebt.Add(invoice.RemainingAmount)
		} else {
			customer.CurrentDebt = customer.CurrentDebt.Add(invoice.RemainingAmount)
			dashboard.CurrentDebt = dashboard.CurrentDebt.Add(invoice.RemainingAmount)
		}
	}

	sort.SliceStable(dashboard.Customers, func(i, j int) bool {
		return dashboard.Customers[i].TotalDebt.GreaterThan(dashboard.Customers[j].TotalDebt)
	})
	return dashboard, nil
}

func (s *Service) emitAudit(ctx context.Context, receipt *paymentdomain.PaymentReceipt, actor string) {
	if s.auditSvc == nil || receipt == nil {
		return
	}
	targetID := receipt.ID.String()
	issuerID := receipt.IssuerID
	metadata := map[string]any{
		"invoice_id":     receipt.InvoiceID.String(),
		"amount":         receipt.Amount.String(),
		"payment_method": receipt.PaymentMethod,
	}
	if err := s.auditSvc.AuditLog(ctx, &issuerID, actor, "payment.applied", "payment_receipt", &targetID, metadata); err != nil {
		s.log.Warn("failed to write payment audit log", zap.Error(err))
	}
}
