// Package domain contains raw delivery records as reported by couriers. They
// feed the rating engine and back the reconciliation fallback.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DeliveryRecord struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	IssuerID   snowflake.ID `gorm:"not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`

	Date time.Time `gorm:"not null;index"`

	// Distance in km for current records; legacy records carry only the
	// route duration in minutes.
	Distance        *decimal.Decimal `gorm:"type:numeric(10,2)"`
	DurationMinutes *decimal.Decimal `gorm:"type:numeric(10,2)"`
	Legacy          bool             `gorm:"not null;default:false"`

	OrderRef string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DeliveryRecord) TableName() string { return "delivery_records" }
