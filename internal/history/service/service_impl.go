package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	historydomain "github.com/repartia/treasury/internal/history/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	"github.com/repartia/treasury/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	threshold  decimal.Decimal
	recordRepo repository.Repository[historydomain.DeliveryRecord]
}

func NewService(p Params) historydomain.Service {
	threshold, err := decimal.NewFromString(p.Cfg.ReconcilePricePerUnit)
	if err != nil || !threshold.IsPositive() {
		threshold = decimal.RequireFromString("2.00")
		p.Log.Warn("invalid reconcile threshold, using default",
			zap.String("configured", p.Cfg.ReconcilePricePerUnit),
			zap.String("default", threshold.String()))
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("history.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		threshold:  threshold,
		recordRepo: repository.ProvideStore[historydomain.DeliveryRecord](p.DB),
	}
}

func (s *Service) AddRecord(ctx context.Context, req historydomain.AddRecordRequest) (historydomain.DeliveryRecord, error) {
	if req.IssuerID == 0 || req.CustomerID == 0 {
		return historydomain.DeliveryRecord{}, historydomain.ErrInvalidRecord
	}
	if req.Distance == nil && req.Duration == nil {
		return historydomain.DeliveryRecord{}, historydomain.ErrInvalidRecord
	}

	date := req.Date
	if date.IsZero() {
		date = s.clock.Now()
	}
	record := historydomain.DeliveryRecord{
		ID:              s.genID.Generate(),
		IssuerID:        req.IssuerID,
		CustomerID:      req.CustomerID,
		Date:            date.UTC(),
		Distance:        req.Distance,
		DurationMinutes: req.Duration,
		Legacy:          req.Distance == nil,
		OrderRef:        req.OrderRef,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.recordRepo.Create(ctx, &record); err != nil {
		return historydomain.DeliveryRecord{}, err
	}
	return record, nil
}

func (s *Service) UsageForPeriod(ctx context.Context, issuerID, customerID snowflake.ID, period string) ([]ratingdomain.UsageRecord, error) {
	records, err := s.recordsBetween(ctx, issuerID, customerID, period)
	if err != nil {
		return nil, err
	}

	usage := make([]ratingdomain.UsageRecord, 0, len(records))
	for _, record := range records {
		item := ratingdomain.UsageRecord{Legacy: record.Legacy}
		if record.Distance != nil {
			item.Distance = *record.Distance
		}
		if record.DurationMinutes != nil {
			item.Duration = *record.DurationMinutes
		}
		usage = append(usage, item)
	}
	return usage, nil
}

func (s *Service) ReconcileOrderCount(ctx context.Context, invoice *invoicedomain.Invoice) (historydomain.Reconciliation, error) {
	units := decimal.Zero
	for _, line := range invoice.Lines {
		units = units.Add(line.Quantity)
	}

	if !s.implausible(units, invoice.Subtotal) {
		return historydomain.Reconciliation{OrderCount: units.IntPart()}, nil
	}

	period := taxvaultdomain.PeriodOf(invoice.IssueDate)
	records, err := s.recordsBetween(ctx, invoice.IssuerID, invoice.CustomerID, period)
	if err != nil {
		return historydomain.Reconciliation{}, err
	}
	s.log.Info("reconstructed order count from delivery history",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("period", period),
		zap.Int("records", len(records)))
	return historydomain.Reconciliation{
		OrderCount:    int64(len(records)),
		Reconstructed: true,
	}, nil
}

// implausible flags an invoice whose implied price per unit exceeds the
// configured threshold, meaning the line quantities undercount real orders.
func (s *Service) implausible(units, subtotal decimal.Decimal) bool {
	if !subtotal.IsPositive() {
		return false
	}
	if !units.IsPositive() {
		return true
	}
	return subtotal.Div(units).GreaterThan(s.threshold)
}

func (s *Service) recordsBetween(ctx context.Context, issuerID, customerID snowflake.ID, period string) ([]historydomain.DeliveryRecord, error) {
	start, end, err := taxvaultdomain.PeriodBounds(period)
	if err != nil {
		return nil, err
	}
	return s.findRecords(ctx, issuerID, customerID, start, end)
}

func (s *Service) findRecords(ctx context.Context, issuerID, customerID snowflake.ID, start, end time.Time) ([]historydomain.DeliveryRecord, error) {
	var records []historydomain.DeliveryRecord
	err := s.db.WithContext(ctx).
		Where("issuer_id = ? AND customer_id = ?", issuerID, customerID).
		Where("date >= ? AND date < ?", start, end).
		Order("date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
