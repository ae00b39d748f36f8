// Package seed bootstraps the system default rate table so a fresh
// deployment can price deliveries before any issuer overrides exist.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type defaultRange struct {
	name  string
	kind  ratingdomain.RangeKind
	min   string
	max   string
	price string
}

var defaultRanges = []defaultRange{
	{name: "Hasta 2 km", kind: ratingdomain.RangeKindDistance, min: "0", max: "2", price: "1.60"},
	{name: "2 a 4 km", kind: ratingdomain.RangeKindDistance, min: "2", max: "4", price: "2.10"},
	{name: "4 a 7 km", kind: ratingdomain.RangeKindDistance, min: "4", max: "7", price: "2.80"},
	{name: "Más de 7 km", kind: ratingdomain.RangeKindDistance, min: "7", max: "", price: "3.50"},
	{name: "Reparto corto", kind: ratingdomain.RangeKindDuration, min: "0", max: "35", price: "1.80"},
	{name: "Reparto largo", kind: ratingdomain.RangeKindDuration, min: "35", max: "", price: "2.90"},
}

// EnsureDefaultRanges inserts the system default bands when none exist yet.
// Idempotent; never touches issuer overrides.
func EnsureDefaultRanges(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ratingdomain.RatingRange{}).
			Where("issuer_id IS NULL").
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		for _, def := range defaultRanges {
			band := ratingdomain.RatingRange{
				ID:           node.Generate(),
				Name:         def.name,
				Kind:         def.kind,
				Min:          decimal.RequireFromString(def.min),
				PricePerUnit: decimal.RequireFromString(def.price),
			}
			if def.max != "" {
				max := decimal.RequireFromString(def.max)
				band.Max = &max
			}
			if err := tx.Create(&band).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
