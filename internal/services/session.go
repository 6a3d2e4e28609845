package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/data/repos"
	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/dbctx"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/httpx"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const (
	mutateMaxAttempts = 3
	mutateRetryBase   = 50 * time.Millisecond
)

type SessionService interface {
	Create(ctx context.Context) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, limit int) ([]domain.Summary, error)
	Context(ctx context.Context, id string) (domain.Context, error)
	Delete(ctx context.Context, id string) error

	SetOriginal(ctx context.Context, id string, a domain.VideoAnalysis) (*domain.Session, error)
	AddPracticeClip(ctx context.Context, id string, c domain.PracticeClip) (int, error)
	SetFinal(ctx context.Context, id string, a domain.VideoAnalysis) (*domain.Session, error)
	UpdateFeedback(ctx context.Context, id string, index int, r domain.FixResult) (*domain.Session, error)
	SkipFeedback(ctx context.Context, id string, index int) (*domain.Session, error)
}

type sessionService struct {
	log      *logger.Logger
	repo     repos.SessionRepo
	tx       db.TxRunner
	notifier SessionNotifier
	locks    *keyedMutex
	now      func() time.Time
}

func NewSessionService(log *logger.Logger, repo repos.SessionRepo, tx db.TxRunner, notifier SessionNotifier) SessionService {
	if notifier == nil {
		notifier = NewSessionNotifier(nil)
	}
	return &sessionService{
		log:      log.With("service", "SessionService"),
		repo:     repo,
		tx:       tx,
		notifier: notifier,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ownerFromContext returns the caller, or "" for operator contexts that see every session.
func ownerFromContext(ctx context.Context) string {
	return ctxutil.UserID(ctx)
}

func notFound(id string) error {
	return apierr.NotFound("session_not_found", "session %s", id)
}

func (s *sessionService) visible(ctx context.Context, rec *domain.Record) bool {
	if rec == nil {
		return false
	}
	owner := ownerFromContext(ctx)
	return owner == "" || rec.OwnerID == owner
}

func (s *sessionService) Create(ctx context.Context) (*domain.Session, error) {
	sess := domain.New(uuid.NewString(), ownerFromContext(ctx), s.now())
	rec := &domain.Record{}
	if err := rec.Encode(sess); err != nil {
		return nil, err
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: ctx}, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("Session created", "session_id", sess.SessionID, "owner_id", sess.UserID)
	s.notifier.SessionUpdated(ctx, sess)
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	rec, err := s.repo.Get(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if !s.visible(ctx, rec) {
		return nil, notFound(id)
	}
	return rec.Decode()
}

func (s *sessionService) List(ctx context.Context, limit int) ([]domain.Summary, error) {
	owner := ownerFromContext(ctx)
	if owner == "" {
		owner = "anonymous"
	}
	rows, err := s.repo.ListByOwner(dbctx.Context{Ctx: ctx}, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.Summary, 0, len(rows))
	for _, rec := range rows {
		sess, err := rec.Decode()
		if err != nil {
			s.log.Warn("Skipping undecodable session", "session_id", rec.ID, "error", err)
			continue
		}
		out = append(out, sess.Summary())
	}
	return out, nil
}

func (s *sessionService) Context(ctx context.Context, id string) (domain.Context, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return domain.Context{}, err
	}
	return sess.Context(), nil
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.repo.Get(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return fmt.Errorf("get session %s: %w", id, err)
	}
	if !s.visible(ctx, rec) {
		return notFound(id)
	}
	deleted, err := s.repo.SoftDelete(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if !deleted {
		return notFound(id)
	}
	s.log.Info("Session deleted", "session_id", id)
	return nil
}

func (s *sessionService) SetOriginal(ctx context.Context, id string, a domain.VideoAnalysis) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session, now time.Time) error {
		sess.SetOriginalVideo(a, now)
		return nil
	})
}

func (s *sessionService) AddPracticeClip(ctx context.Context, id string, c domain.PracticeClip) (int, error) {
	var clipNumber int
	_, err := s.mutate(ctx, id, func(sess *domain.Session, now time.Time) error {
		clipNumber = sess.AddPracticeClip(c, now)
		return nil
	})
	return clipNumber, err
}

func (s *sessionService) SetFinal(ctx context.Context, id string, a domain.VideoAnalysis) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session, now time.Time) error {
		sess.SetFinalVideo(a, now)
		return nil
	})
}

func (s *sessionService) UpdateFeedback(ctx context.Context, id string, index int, r domain.FixResult) (*domain.Session, error) {
	sess, err := s.mutateExisting(ctx, id, func(sess *domain.Session, now time.Time) error {
		return sess.UpdateFeedbackItem(index, r, now)
	})
	if err != nil {
		return nil, err
	}
	if item, err := sess.FeedbackAt(index); err == nil {
		s.notifier.FeedbackUpdated(ctx, id, index, item)
	}
	return sess, nil
}

func (s *sessionService) SkipFeedback(ctx context.Context, id string, index int) (*domain.Session, error) {
	sess, err := s.mutateExisting(ctx, id, func(sess *domain.Session, now time.Time) error {
		return sess.SkipFeedbackItem(index, now)
	})
	if err != nil {
		return nil, err
	}
	if item, err := sess.FeedbackAt(index); err == nil {
		s.notifier.FeedbackUpdated(ctx, id, index, item)
	}
	return sess, nil
}

type mutation func(sess *domain.Session, now time.Time) error

// mutate applies fn to the session, creating it first when it does not exist.
func (s *sessionService) mutate(ctx context.Context, id string, fn mutation) (*domain.Session, error) {
	return s.apply(ctx, id, true, fn)
}

// mutateExisting applies fn only to an existing session.
func (s *sessionService) mutateExisting(ctx context.Context, id string, fn mutation) (*domain.Session, error) {
	return s.apply(ctx, id, false, fn)
}

// apply runs one read-modify-write. Writers to the same id are serialized
// in-process by the keyed mutex and across processes by the row lock.
func (s *sessionService) apply(ctx context.Context, id string, create bool, fn mutation) (*domain.Session, error) {
	if id == "" {
		return nil, apierr.Invalid("missing_session_id", "session_id is required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	var out *domain.Session
	var err error
	for attempt := 1; attempt <= mutateMaxAttempts; attempt++ {
		out, err = s.applyOnce(ctx, id, create, fn)
		if err == nil || !isRetryableTxError(err) || attempt == mutateMaxAttempts {
			break
		}
		s.log.Warn("Retrying session write", "session_id", id, "attempt", attempt, "error", err)
		if sleepErr := httpx.Sleep(ctx, httpx.JitterSleep(mutateRetryBase*time.Duration(attempt))); sleepErr != nil {
			return nil, sleepErr
		}
	}
	if err != nil {
		return nil, err
	}
	s.notifier.SessionUpdated(ctx, out)
	return out, nil
}

func (s *sessionService) applyOnce(ctx context.Context, id string, create bool, fn mutation) (*domain.Session, error) {
	var out *domain.Session
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		now := s.now()
		if create {
			seed := &domain.Record{}
			if err := seed.Encode(domain.New(id, ownerFromContext(ctx), now)); err != nil {
				return err
			}
			if err := s.repo.CreateIfMissing(dbc, seed); err != nil {
				return fmt.Errorf("create session %s: %w", id, err)
			}
		}
		rec, err := s.repo.LockByID(dbc, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.missing(id, create)
			}
			return fmt.Errorf("lock session %s: %w", id, err)
		}
		if !s.visible(ctx, rec) {
			return s.missing(id, create)
		}
		sess, err := rec.Decode()
		if err != nil {
			return err
		}
		if err := fn(sess, now); err != nil {
			return domainError(err)
		}
		if err := rec.Encode(sess); err != nil {
			return err
		}
		if err := s.repo.SaveDocument(dbc, rec); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		out = sess
		return nil
	})
	return out, err
}

// missing reports a session that cannot be written: absent, deleted or owned by someone else.
func (s *sessionService) missing(id string, create bool) error {
	if create {
		return apierr.New(http.StatusConflict, "session_unavailable", fmt.Errorf("%w: session %s is not writable", apierr.ErrConflict, id))
	}
	return apierr.New(http.StatusNotFound, "session_not_found",
		fmt.Errorf("%w: Session %s not found or has no original video", apierr.ErrNotFound, id))
}

func domainError(err error) error {
	switch {
	case domain.IsKind(err, domain.ErrNoOriginal):
		return apierr.New(http.StatusNotFound, "no_original_video", err)
	case domain.IsKind(err, domain.ErrIndexOutOfRange):
		return apierr.New(http.StatusBadRequest, "feedback_index_out_of_range", err)
	case domain.IsKind(err, domain.ErrInvalidStatus):
		return apierr.New(http.StatusBadRequest, "invalid_status", err)
	default:
		return err
	}
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

// keyedMutex hands out one mutex per key and frees it when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
