package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	"github.com/repartia/treasury/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Legacy records carry only a duration and are billed through two fixed
// buckets split at this boundary, not through the configurable bands.
var legacyDurationBoundary = decimal.NewFromInt(35)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	taxRate   decimal.Decimal
	rangeRepo repository.Repository[ratingdomain.RatingRange]
}

func NewService(p Params) ratingdomain.Service {
	rate, err := decimal.NewFromString(p.Cfg.DefaultTaxRate)
	if err != nil {
		rate = decimal.RequireFromString("0.21")
		p.Log.Warn("invalid default tax rate, using fallback",
			zap.String("configured", p.Cfg.DefaultTaxRate),
			zap.String("fallback", rate.String()))
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("rating.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		taxRate:   rate,
		rangeRepo: repository.ProvideStore[ratingdomain.RatingRange](p.DB),
	}
}

func (s *Service) CalculateLogistics(ctx context.Context, issuerID snowflake.ID, records []ratingdomain.UsageRecord) (ratingdomain.Result, error) {
	if len(records) == 0 {
		return ratingdomain.Result{}, ratingdomain.ErrInsufficientData
	}

	distanceRanges, err := s.ListRanges(ctx, issuerID, ratingdomain.RangeKindDistance)
	if err != nil {
		return ratingdomain.Result{}, err
	}
	durationRanges, err := s.ListRanges(ctx, issuerID, ratingdomain.RangeKindDuration)
	if err != nil {
		return ratingdomain.Result{}, err
	}

	counts := map[snowflake.ID]int64{}
	dropped := 0
	for _, record := range records {
		var matched *ratingdomain.RatingRange
		if record.Legacy {
			matched = matchLegacy(record.Duration, durationRanges)
		} else {
			matched = matchRange(record.Distance, distanceRanges)
		}
		if matched == nil {
			dropped++
			continue
		}
		counts[matched.ID]++
	}

	lines := invoicedomain.InvoiceLines{}
	for _, band := range append(distanceRanges, durationRanges...) {
		quantity := counts[band.ID]
		if quantity == 0 {
			continue
		}
		lines = append(lines, invoicedomain.ComputeLine(invoicedomain.InvoiceLine{
			Description: fmt.Sprintf("Repartos %s", band.Name),
			Quantity:    decimal.NewFromInt(quantity),
			UnitPrice:   band.PricePerUnit,
			TaxRate:     s.taxRate,
			RangeName:   band.Name,
		}))
	}
	if len(lines) == 0 {
		return ratingdomain.Result{}, ratingdomain.ErrInsufficientData
	}

	totals := invoicedomain.ComputeTotals(lines)
	return ratingdomain.Result{
		Lines:        lines,
		Subtotal:     totals.Subtotal,
		TaxBreakdown: totals.TaxBreakdown,
		Total:        totals.Total,
		Dropped:      dropped,
	}, nil
}

func (s *Service) CalculateMixedBilling(logistics ratingdomain.Result, extra []invoicedomain.LineRequest) (ratingdomain.Result, error) {
	merged := make(invoicedomain.InvoiceLines, 0, len(logistics.Lines)+len(extra))
	merged = append(merged, logistics.Lines...)
	for _, req := range extra {
		if req.Quantity.IsNegative() || req.Quantity.IsZero() {
			return ratingdomain.Result{}, invoicedomain.NewValidationError("lines", "line quantity must be positive")
		}
		merged = append(merged, invoicedomain.ComputeLine(invoicedomain.InvoiceLine{
			Description:  req.Description,
			Quantity:     req.Quantity,
			UnitPrice:    req.UnitPrice,
			DiscountRate: req.DiscountRate,
			TaxRate:      req.TaxRate,
			RangeName:    req.RangeName,
		}))
	}
	if len(merged) == 0 {
		return ratingdomain.Result{}, ratingdomain.ErrInsufficientData
	}

	totals := invoicedomain.ComputeTotals(merged)
	return ratingdomain.Result{
		Lines:        merged,
		Subtotal:     totals.Subtotal,
		TaxBreakdown: totals.TaxBreakdown,
		Total:        totals.Total,
		Dropped:      logistics.Dropped,
	}, nil
}

// ListRanges returns the issuer's bands of a kind, falling back to the system
// defaults when the issuer has no overrides for that kind.
func (s *Service) ListRanges(ctx context.Context, issuerID snowflake.ID, kind ratingdomain.RangeKind) ([]ratingdomain.RatingRange, error) {
	if !kind.Valid() {
		return nil, ratingdomain.ErrInvalidRange
	}

	var ranges []ratingdomain.RatingRange
	err := s.db.WithContext(ctx).
		Where("issuer_id = ? AND kind = ?", issuerID, kind).
		Find(&ranges).Error
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		err = s.db.WithContext(ctx).
			Where("issuer_id IS NULL AND kind = ?", kind).
			Find(&ranges).Error
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Min.LessThan(ranges[j].Min)
	})
	return ranges, nil
}

func (s *Service) CreateRange(ctx context.Context, req ratingdomain.CreateRangeRequest) (ratingdomain.RatingRange, error) {
	if !req.Kind.Valid() || req.Name == "" {
		return ratingdomain.RatingRange{}, ratingdomain.ErrInvalidRange
	}
	if req.Min.IsNegative() || !req.PricePerUnit.IsPositive() {
		return ratingdomain.RatingRange{}, ratingdomain.ErrInvalidRange
	}
	if req.Max != nil && !req.Max.GreaterThan(req.Min) {
		return ratingdomain.RatingRange{}, ratingdomain.ErrInvalidRange
	}

	now := s.clock.Now()
	band := ratingdomain.RatingRange{
		ID:           s.genID.Generate(),
		IssuerID:     req.IssuerID,
		Name:         req.Name,
		Kind:         req.Kind,
		Min:          req.Min,
		Max:          req.Max,
		PricePerUnit: req.PricePerUnit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.assertNoOverlap(ctx, band, 0); err != nil {
		return ratingdomain.RatingRange{}, err
	}
	if err := s.rangeRepo.Create(ctx, &band); err != nil {
		return ratingdomain.RatingRange{}, err
	}
	return band, nil
}

func (s *Service) UpdateRange(ctx context.Context, id snowflake.ID, req ratingdomain.UpdateRangeRequest) (ratingdomain.RatingRange, error) {
	band, err := s.rangeRepo.FindOne(ctx, &ratingdomain.RatingRange{ID: id})
	if err != nil {
		return ratingdomain.RatingRange{}, err
	}
	if band == nil {
		return ratingdomain.RatingRange{}, ratingdomain.ErrRangeNotFound
	}

	if req.Name != nil {
		band.Name = *req.Name
	}
	if req.Min != nil {
		band.Min = *req.Min
	}
	if req.Max != nil {
		band.Max = req.Max
	}
	if req.PricePerUnit != nil {
		band.PricePerUnit = *req.PricePerUnit
	}
	if band.Min.IsNegative() || !band.PricePerUnit.IsPositive() {
		return ratingdomain.RatingRange{}, ratingdomain.ErrInvalidRange
	}
	if band.Max != nil && !band.Max.GreaterThan(band.Min) {
		return ratingdomain.RatingRange{}, ratingdomain.ErrInvalidRange
	}
	if err := s.assertNoOverlap(ctx, *band, id); err != nil {
		return ratingdomain.RatingRange{}, err
	}

	band.UpdatedAt = s.clock.Now()
	if err := s.rangeRepo.Update(ctx, id.String(), band); err != nil {
		return ratingdomain.RatingRange{}, err
	}
	return *band, nil
}

func (s *Service) DeleteRange(ctx context.Context, id snowflake.ID) error {
	band, err := s.rangeRepo.FindOne(ctx, &ratingdomain.RatingRange{ID: id})
	if err != nil {
		return err
	}
	if band == nil {
		return ratingdomain.ErrRangeNotFound
	}
	return s.rangeRepo.Delete(ctx, id.String())
}

// assertNoOverlap checks the band against its siblings in the same scope
// (same issuer or the system defaults) and kind.
func (s *Service) assertNoOverlap(ctx context.Context, band ratingdomain.RatingRange, exclude snowflake.ID) error {
	query := s.db.WithContext(ctx).Where("kind = ?", band.Kind)
	if band.IssuerID != nil {
		query = query.Where("issuer_id = ?", *band.IssuerID)
	} else {
		query = query.Where("issuer_id IS NULL")
	}

	var siblings []ratingdomain.RatingRange
	if err := query.Find(&siblings).Error; err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == exclude {
			continue
		}
		if overlaps(band, sibling) {
			return ratingdomain.ErrRangeOverlap
		}
	}
	return nil
}

func overlaps(a, b ratingdomain.RatingRange) bool {
	aBelowB := a.Max != nil && !a.Max.GreaterThan(b.Min)
	bBelowA := b.Max != nil && !b.Max.GreaterThan(a.Min)
	return !aBelowB && !bBelowA
}

func matchRange(value decimal.Decimal, ranges []ratingdomain.RatingRange) *ratingdomain.RatingRange {
	for i := range ranges {
		if ranges[i].Contains(value) {
			return &ranges[i]
		}
	}
	return nil
}

// matchLegacy collapses a duration into the short or long bucket before
// matching, so legacy records never depend on fine-grained band edges.
func matchLegacy(duration decimal.Decimal, durationRanges []ratingdomain.RatingRange) *ratingdomain.RatingRange {
	probe := decimal.Zero
	if duration.GreaterThanOrEqual(legacyDurationBoundary) {
		probe = legacyDurationBoundary
	}
	return matchRange(probe, durationRanges)
}
