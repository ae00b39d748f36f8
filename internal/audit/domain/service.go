package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, issuerID *snowflake.ID, actor string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, issuerID snowflake.ID, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, issuerID snowflake.ID, req ListAuditLogRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidIssuer = errors.New("invalid_issuer")
)
