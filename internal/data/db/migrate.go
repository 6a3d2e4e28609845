package db

import (
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/domain/session"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&session.Record{},
	)
}
