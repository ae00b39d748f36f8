// Package domain contains expense records posted by the external expense
// source. Only their dates and input tax matter to this core.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	IssuerID  snowflake.ID    `gorm:"not null;index"`
	Date      time.Time       `gorm:"not null;index"`
	Category  string          `gorm:"type:text"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TaxAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedBy string          `gorm:"type:text;not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Expense) TableName() string { return "expenses" }
