package session

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/dbctx"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const (
	DefaultListLimit = 20
	maxListLimit     = 200
)

type SessionRepo interface {
	Create(dbc dbctx.Context, row *domain.Record) (*domain.Record, error)
	// CreateIfMissing inserts row unless a row with the same id exists, live or deleted.
	CreateIfMissing(dbc dbctx.Context, row *domain.Record) error
	// Get returns nil without error when the session does not exist.
	Get(dbc dbctx.Context, id string) (*domain.Record, error)
	LockByID(dbc dbctx.Context, id string) (*domain.Record, error)
	SaveDocument(dbc dbctx.Context, row *domain.Record) error
	ListByOwner(dbc dbctx.Context, ownerID string, limit int) ([]*domain.Record, error)
	SoftDelete(dbc dbctx.Context, id string) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, row *domain.Record) (*domain.Record, error) {
	if row == nil || row.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if err := dbc.DB(r.db).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *sessionRepo) CreateIfMissing(dbc dbctx.Context, row *domain.Record) error {
	if row == nil || row.ID == "" {
		return fmt.Errorf("missing id")
	}
	return dbc.DB(r.db).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row).Error
}

func (r *sessionRepo) Get(dbc dbctx.Context, id string) (*domain.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Record
	err := dbc.DB(r.db).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockByID reads the row with FOR UPDATE. On sqlite the clause is dropped by the
// dialector and the transaction itself serializes writers.
func (r *sessionRepo) LockByID(dbc dbctx.Context, id string) (*domain.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	var out domain.Record
	err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) SaveDocument(dbc dbctx.Context, row *domain.Record) error {
	if row == nil || row.ID == "" {
		return fmt.Errorf("missing id")
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	res := dbc.DB(r.db).WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"owner_id":   row.OwnerID,
			"document":   row.Document,
			"updated_at": row.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *sessionRepo) ListByOwner(dbc dbctx.Context, ownerID string, limit int) ([]*domain.Record, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("missing owner_id")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = DefaultListLimit
	}
	var out []*domain.Record
	if err := dbc.DB(r.db).WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) SoftDelete(dbc dbctx.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("missing id")
	}
	res := dbc.DB(r.db).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.Record{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
