package database

import (
	"log"

	"github.com/Schemion/schemion-api/internal/database/versions/migration_0"
	"github.com/Schemion/schemion-api/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Run by the migrator if no previous migration is detected, creates the
		// latest schema directly instead of replaying every migration.
		log.Println("clean database detected, running full schema initialization")

		return txn.AutoMigrate(&User{}, &Dataset{}, &Model{}, &Task{}, &AuditLog{})
	})

	return migrator
}
