package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditLogFilter struct {
	UserId uuid.NullUUID
	Action string
	Since  time.Time
}

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("error creating audit log: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) GetByID(ctx context.Context, id uint) (*AuditLog, error) {
	var entry AuditLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

func (r *AuditLogRepository) List(ctx context.Context, page Page, filter AuditLogFilter) ([]AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&AuditLog{})
	if filter.UserId.Valid {
		q = q.Where("user_id = ?", filter.UserId.UUID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("creation_time >= ?", filter.Since)
	}

	var entries []AuditLog
	if err := page.apply(q.Order("creation_time DESC, id DESC")).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error listing audit logs: %w", err)
	}
	return entries, nil
}

func (r *AuditLogRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&AuditLog{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("error deleting audit log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
