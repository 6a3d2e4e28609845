package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

var (
	ErrQueueFull   = errors.New("conversion queue is full")
	ErrQueueClosed = errors.New("conversion queue is closed")
)

// ConversionJob converts an uploaded recording to mp4 and stores it next to the source.
type ConversionJob struct {
	BlobName string
	OwnerID  string
}

type ConversionConfig struct {
	Workers   int
	QueueSize int
}

func ConversionConfigFromEnv() ConversionConfig {
	return ConversionConfig{
		Workers:   envutil.Int("CONVERSION_WORKERS", 2),
		QueueSize: envutil.Int("CONVERSION_QUEUE_SIZE", 32),
	}
}

type ConversionQueue struct {
	log        *logger.Logger
	blobs      BlobStore
	transcoder VideoTranscoder
	notifier   SessionNotifier
	workDir    string
	cfg        ConversionConfig

	mu     sync.RWMutex
	jobs   chan ConversionJob
	closed bool
	group  *errgroup.Group
}

func NewConversionQueue(
	log *logger.Logger,
	blobs BlobStore,
	transcoder VideoTranscoder,
	notifier SessionNotifier,
	workDir string,
	cfg ConversionConfig,
) *ConversionQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if notifier == nil {
		notifier = NewSessionNotifier(nil)
	}
	return &ConversionQueue{
		log:        log.With("component", "ConversionQueue"),
		blobs:      blobs,
		transcoder: transcoder,
		notifier:   notifier,
		workDir:    workDir,
		cfg:        cfg,
		jobs:       make(chan ConversionJob, cfg.QueueSize),
	}
}

// Start launches the workers. They drain the queue until Close is called or ctx ends.
func (q *ConversionQueue) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(gctx, worker)
			return nil
		})
	}
	q.mu.Lock()
	q.group = g
	q.mu.Unlock()
	q.log.Info("Conversion workers started", "workers", q.cfg.Workers, "queue_size", q.cfg.QueueSize)
}

// Enqueue accepts a job without blocking.
func (q *ConversionQueue) Enqueue(job ConversionJob) error {
	if job.BlobName == "" {
		return apierr.Invalid("missing_video_url", "video_url is required")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return apierr.New(http.StatusServiceUnavailable, "queue_closed", ErrQueueClosed)
	}
	select {
	case q.jobs <- job:
		observability.Current().SetConversionQueueDepth(len(q.jobs))
		q.log.Info("Conversion queued", "blob", job.BlobName, "depth", len(q.jobs))
		return nil
	default:
		return apierr.New(http.StatusServiceUnavailable, "queue_full", ErrQueueFull)
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *ConversionQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	g := q.group
	q.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

func (q *ConversionQueue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			observability.Current().SetConversionQueueDepth(len(q.jobs))
			q.runSafe(ctx, worker, job)
		}
	}
}

func (q *ConversionQueue) runSafe(ctx context.Context, worker int, job ConversionJob) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				q.log.Error("Conversion panic", "worker", worker, "blob", job.BlobName, "panic", r)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return q.Convert(ctx, job)
	}()
	if err != nil {
		observability.Current().ObserveConversion("error", time.Since(start))
		q.log.Error("Conversion failed", "worker", worker, "blob", job.BlobName, "error", err)
		q.notifier.ConversionFailed(ctx, job.OwnerID, job.BlobName, err.Error())
		return
	}
	observability.Current().ObserveConversion("ok", time.Since(start))
}

// Convert runs one job synchronously: download, transcode, upload the mp4 next to the source.
func (q *ConversionQueue) Convert(ctx context.Context, job ConversionJob) error {
	media := newLocalMedia(q.blobs, q.transcoder, q.workDir)
	defer media.cleanup()

	if err := media.download(ctx, job.BlobName); err != nil {
		return err
	}
	mp4, err := media.convert(ctx)
	if err != nil {
		return err
	}
	target := convertedBlobName(job.BlobName)
	if err := q.blobs.Upload(ctx, mp4, target, "video/mp4"); err != nil {
		return fmt.Errorf("upload %s: %w", target, err)
	}
	q.log.Info("Conversion complete", "blob", job.BlobName, "converted", target)
	q.notifier.ConversionDone(ctx, job.OwnerID, job.BlobName, target)
	return nil
}
