package migration_1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	Id           uint           `gorm:"primaryKey;autoIncrement"`
	UserId       uuid.NullUUID  `gorm:"type:uuid;index"`
	Action       string         `gorm:"size:100;not null;index"`
	Details      datatypes.JSON `gorm:"type:jsonb"`
	CreationTime time.Time      `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().CreateTable(&AuditLog{}); err != nil {
		return fmt.Errorf("error creating audit_logs table: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&AuditLog{}); err != nil {
		return fmt.Errorf("error dropping audit_logs table: %w", err)
	}
	return nil
}
