package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/clock"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	pkgdb "github.com/repartia/treasury/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	TaxVault taxvaultdomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	taxVault taxvaultdomain.Service
	auditSvc auditdomain.Service
}

func NewService(p Params) expensedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("expense.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		taxVault: p.TaxVault,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreateExpense(ctx context.Context, req expensedomain.CreateExpenseRequest, actor string) (expensedomain.Expense, error) {
	if req.IssuerID == 0 || !req.Amount.IsPositive() || req.TaxAmount.IsNegative() {
		return expensedomain.Expense{}, expensedomain.ErrInvalidExpense
	}

	now := s.clock.Now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}

	expense := expensedomain.Expense{
		ID:        s.genID.Generate(),
		IssuerID:  req.IssuerID,
		Date:      date,
		Category:  req.Category,
		Amount:    req.Amount,
		TaxAmount: req.TaxAmount,
		CreatedBy: actor,
		CreatedAt: now,
	}

	err := pkgdb.RunInTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&expense).Error; err != nil {
			return err
		}
		// A locked period rejects the whole posting, not just the vault leg.
		return s.taxVault.OnExpenseCreated(ctx, tx, &expense)
	})
	if err != nil {
		return expensedomain.Expense{}, err
	}

	targetID := expense.ID.String()
	issuerID := expense.IssuerID
	if err := s.auditSvc.AuditLog(ctx, &issuerID, actor, "expense.created", "expense", &targetID, map[string]any{
		"amount":     expense.Amount.String(),
		"tax_amount": expense.TaxAmount.String(),
		"category":   expense.Category,
	}); err != nil {
		s.log.Warn("failed to write expense audit log", zap.Error(err))
	}
	return expense, nil
}

func (s *Service) ListByPeriod(ctx context.Context, issuerID snowflake.ID, period string) ([]expensedomain.Expense, error) {
	start, end, err := taxvaultdomain.PeriodBounds(period)
	if err != nil {
		return nil, err
	}

	var expenses []expensedomain.Expense
	err = s.db.WithContext(ctx).
		Where("issuer_id = ?", issuerID).
		Where("date >= ? AND date < ?", start, end).
		Order("date ASC").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}
