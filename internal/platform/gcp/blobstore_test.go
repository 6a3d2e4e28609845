package gcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

func newEmulatorStore(t *testing.T, host string) *BlobStore {
	t.Helper()
	store, err := NewBlobStore(context.Background(), logger.Nop(), BlobStoreConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: host,
		Bucket:       "media",
	})
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEmulatorSignedURLs(t *testing.T) {
	store := newEmulatorStore(t, "http://fake-gcs:4443/")

	up, err := store.SignedUploadURL(context.Background(), "uploads/take 1.webm", "video/webm")
	if err != nil {
		t.Fatalf("SignedUploadURL: %v", err)
	}
	if !strings.HasPrefix(up, "http://fake-gcs:4443/upload/storage/v1/b/media/o?") {
		t.Fatalf("upload url: %s", up)
	}
	if !strings.Contains(up, "name=uploads%2Ftake+1.webm") {
		t.Fatalf("upload url missing object name: %s", up)
	}

	down, err := store.SignedDownloadURL(context.Background(), "uploads/a.mp4")
	if err != nil {
		t.Fatalf("SignedDownloadURL: %v", err)
	}
	if want := "http://fake-gcs:4443/storage/v1/b/media/o/uploads%2Fa.mp4?alt=media"; down != want {
		t.Fatalf("download url: want=%s got=%s", want, down)
	}
}

func TestEmulatorDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(r.URL.EscapedPath(), "missing.webm") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	store := newEmulatorStore(t, srv.URL)
	dst := filepath.Join(t.TempDir(), "nested", "clip.webm")

	if err := store.Download(context.Background(), "uploads/clip.webm", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "video-bytes" {
		t.Fatalf("content: got %q", b)
	}

	err = store.Download(context.Background(), "uploads/missing.webm", filepath.Join(t.TempDir(), "x.webm"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("missing object: want ErrObjectNotFound got %v", err)
	}
}
