package app

import (
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/data/repos"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

func wireRepos(db *gorm.DB, log *logger.Logger) repos.Repos {
	log.Info("Wiring repos...")
	return repos.New(db, log)
}
