package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return repo{}
}

func (repo) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (repo) List(ctx context.Context, db *gorm.DB, issuerID snowflake.ID, req auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	stmt := db.WithContext(ctx).Where("issuer_id = ?", issuerID)
	if req.Action != "" {
		stmt = stmt.Where("action = ?", req.Action)
	}
	if req.TargetType != "" {
		stmt = stmt.Where("target_type = ?", req.TargetType)
	}
	if req.TargetID != "" {
		stmt = stmt.Where("target_id = ?", req.TargetID)
	}
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	var logs []auditdomain.AuditLog
	err := stmt.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
