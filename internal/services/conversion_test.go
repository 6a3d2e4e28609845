package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

func TestConversionQueueUploadsNextToSource(t *testing.T) {
	blobs := &fakeBlobs{}
	emit := &recordingEmitter{}
	workDir := t.TempDir()
	q := NewConversionQueue(logger.Nop(), blobs, copyTranscoder{}, NewSessionNotifier(emit), workDir, ConversionConfig{Workers: 2, QueueSize: 4})
	q.Start(context.Background())

	for _, blob := range []string{"uploads/a.webm", "uploads/b.webm", "uploads/c.mp4"} {
		if err := q.Enqueue(ConversionJob{BlobName: blob, OwnerID: "alice"}); err != nil {
			t.Fatalf("Enqueue(%s): %v", blob, err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, want := range []string{"uploads/a.mp4", "uploads/b.mp4", "uploads/c.converted.mp4"} {
		if _, ok := blobs.uploaded[want]; !ok {
			t.Fatalf("missing upload %s: %v", want, blobs.uploaded)
		}
	}
	if got := emit.count(realtime.SSEEventConversionDone); got != 3 {
		t.Fatalf("ConversionDone: want=3 got=%d", got)
	}
	assertEmptyDir(t, workDir)

	if err := q.Enqueue(ConversionJob{BlobName: "uploads/late.webm"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("after close: want ErrQueueClosed got %v", err)
	}
}

func TestConversionQueueReportsFailure(t *testing.T) {
	emit := &recordingEmitter{}
	q := NewConversionQueue(logger.Nop(), &fakeBlobs{}, copyTranscoder{err: errors.New("bad codec")}, NewSessionNotifier(emit), t.TempDir(), ConversionConfig{Workers: 1, QueueSize: 1})
	q.Start(context.Background())
	if err := q.Enqueue(ConversionJob{BlobName: "uploads/a.webm", OwnerID: "bob"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := emit.count(realtime.SSEEventConversionFailed); got != 1 {
		t.Fatalf("ConversionFailed: want=1 got=%d", got)
	}
}

func TestConversionQueueFull(t *testing.T) {
	q := NewConversionQueue(logger.Nop(), &fakeBlobs{}, copyTranscoder{}, nil, t.TempDir(), ConversionConfig{Workers: 1, QueueSize: 1})
	// Workers are not started, so the second job cannot be accepted.
	if err := q.Enqueue(ConversionJob{BlobName: "uploads/a.webm"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err := q.Enqueue(ConversionJob{BlobName: "uploads/b.webm"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull got %v", err)
	}
	if status, _ := apierr.Status(err); status != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", status)
	}
	if err := q.Enqueue(ConversionJob{}); !errors.Is(err, apierr.ErrInvalidArgument) {
		t.Fatalf("empty blob: %v", err)
	}
}

func TestConversionQueueStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewConversionQueue(logger.Nop(), &fakeBlobs{}, copyTranscoder{}, nil, t.TempDir(), ConversionConfig{Workers: 2, QueueSize: 2})
	q.Start(ctx)
	cancel()
	done := make(chan error, 1)
	go func() { done <- q.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("workers did not stop")
	}
}

func TestUploadServiceSignedURL(t *testing.T) {
	svc := NewUploadService(logger.Nop(), &fakeBlobs{})
	got, err := svc.SignedURL(context.Background(), "take.webm", "")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if got.Filename != "uploads/take.webm" {
		t.Fatalf("filename: %s", got.Filename)
	}
	if got.UploadURL != "https://put.example/uploads/take.webm?ct=video/webm" {
		t.Fatalf("upload url: %s", got.UploadURL)
	}
	if got.DownloadURL != "https://get.example/uploads/take.webm" {
		t.Fatalf("download url: %s", got.DownloadURL)
	}
	for _, bad := range []string{"", "../secrets", "/etc/passwd"} {
		if _, err := svc.SignedURL(context.Background(), bad, ""); !errors.Is(err, apierr.ErrInvalidArgument) {
			t.Fatalf("filename %q: want invalid argument got %v", bad, err)
		}
	}
}

func TestUploadServiceRefreshURLs(t *testing.T) {
	svc := NewUploadService(logger.Nop(), &fakeBlobs{})
	clipURL, clipBlob := "https://stale/fix", "uploads/fix.mp4"
	sess := &domain.Session{
		OriginalVideo: &domain.VideoAnalysis{
			URL:      "https://stale/original",
			BlobName: "uploads/original.mp4",
			FeedbackItems: []domain.FeedbackItem{
				{FixClipURL: &clipURL, FixClipBlobName: &clipBlob},
				{},
			},
		},
		PracticeClips: []domain.PracticeClip{{URL: "https://stale/p1", BlobName: "uploads/p1.mp4"}},
	}
	svc.RefreshURLs(context.Background(), sess)

	if got := sess.OriginalVideo.URL; got != "https://get.example/uploads/original.mp4" {
		t.Fatalf("original url: %s", got)
	}
	if got := *sess.OriginalVideo.FeedbackItems[0].FixClipURL; got != "https://get.example/uploads/fix.mp4" {
		t.Fatalf("fix clip url: %s", got)
	}
	if sess.OriginalVideo.FeedbackItems[1].FixClipURL != nil {
		t.Fatalf("item without clip gained a url")
	}
	if got := sess.PracticeClips[0].URL; got != "https://get.example/uploads/p1.mp4" {
		t.Fatalf("practice url: %s", got)
	}
	svc.RefreshURLs(context.Background(), nil)
}
