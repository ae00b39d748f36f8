// Package domain contains the logistics rate table and its pricing inputs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RangeKind separates distance-priced ranges from duration-priced ones.
type RangeKind string

const (
	RangeKindDistance RangeKind = "DISTANCE"
	RangeKindDuration RangeKind = "DURATION"
)

func (k RangeKind) Valid() bool {
	return k == RangeKindDistance || k == RangeKindDuration
}

// RatingRange is one band of the rate table: records whose value falls in
// [Min, Max) are billed at PricePerUnit. A nil Max leaves the band open-ended.
// IssuerID nil marks a system default; an issuer with any ranges of a kind
// overrides the defaults for that kind entirely.
type RatingRange struct {
	ID       snowflake.ID  `gorm:"primaryKey"`
	IssuerID *snowflake.ID `gorm:"index"`

	Name string    `gorm:"type:text;not null"`
	Kind RangeKind `gorm:"type:text;not null;index"`

	Min decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	Max *decimal.Decimal `gorm:"type:numeric(10,2)"`

	PricePerUnit decimal.Decimal `gorm:"type:numeric(10,2);not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RatingRange) TableName() string { return "rating_ranges" }

// Contains reports whether value falls inside the band.
func (r RatingRange) Contains(value decimal.Decimal) bool {
	if value.LessThan(r.Min) {
		return false
	}
	return r.Max == nil || value.LessThan(*r.Max)
}

// UsageRecord is one raw delivery as supplied by the history source. Legacy
// records carry a duration in minutes instead of a distance and predate
// distance capture.
type UsageRecord struct {
	Distance decimal.Decimal
	Duration decimal.Decimal
	Legacy   bool
}
