package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records a financially relevant action. Writes are fire-and-forget:
// a failed audit insert never fails the operation that produced it.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	EventUID   string            `gorm:"type:text;not null;uniqueIndex"`
	IssuerID   *snowflake.ID     `gorm:"index"`
	Actor      string            `gorm:"type:text;not null"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
