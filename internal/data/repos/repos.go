package repos

import (
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/data/repos/session"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

type SessionRepo = session.SessionRepo

type Repos struct {
	Session SessionRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Session: session.NewSessionRepo(db, log),
	}
}
