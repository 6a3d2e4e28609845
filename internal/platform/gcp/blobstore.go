package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// BlobStore mints signed URLs for browser uploads and moves media between the bucket and local disk.
type BlobStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    BlobStoreConfig
	http   *http.Client
}

func NewBlobStore(ctx context.Context, log *logger.Logger, cfg BlobStoreConfig) (*BlobStore, error) {
	if err := ValidateBlobStoreConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = defaultUploadURLTTL
	}
	if cfg.DownloadURLTTL <= 0 {
		cfg.DownloadURLTTL = defaultDownloadURLTTL
	}
	cfg.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")

	storeLog := log.With("service", "BlobStore")
	storeLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", cfg.Bucket,
	)
	return &BlobStore{log: storeLog, client: client, cfg: cfg, http: &http.Client{Timeout: 5 * time.Minute}}, nil
}

func newStorageClientForMode(ctx context.Context, cfg BlobStoreConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

func (s *BlobStore) Bucket() string { return s.cfg.Bucket }

func (s *BlobStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SignedUploadURL returns a V4 PUT URL bound to contentType. The emulator has no signer,
// so its media upload endpoint is returned instead.
func (s *BlobStore) SignedUploadURL(ctx context.Context, blobName, contentType string) (string, error) {
	if s.cfg.IsEmulatorMode() {
		return emulatorUploadURL(s.cfg.EmulatorHost, s.cfg.Bucket, blobName), nil
	}
	u, err := s.client.Bucket(s.cfg.Bucket).SignedURL(blobName, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(s.cfg.UploadURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign upload url for %s: %w", blobName, err)
	}
	return u, nil
}

func (s *BlobStore) SignedDownloadURL(ctx context.Context, blobName string) (string, error) {
	if s.cfg.IsEmulatorMode() {
		return emulatorMediaURL(s.cfg.EmulatorHost, s.cfg.Bucket, blobName), nil
	}
	u, err := s.client.Bucket(s.cfg.Bucket).SignedURL(blobName, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.cfg.DownloadURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign download url for %s: %w", blobName, err)
	}
	return u, nil
}

// Download copies the object to localPath, creating parent directories.
func (s *BlobStore) Download(ctx context.Context, blobName, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	rc, err := s.open(ctx, blobName)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("download %s: %w", blobName, err)
	}
	return f.Close()
}

func (s *BlobStore) open(ctx context.Context, blobName string) (io.ReadCloser, error) {
	if s.cfg.IsEmulatorMode() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, emulatorMediaURL(s.cfg.EmulatorHost, s.cfg.Bucket, blobName), nil)
		if err != nil {
			return nil, fmt.Errorf("build emulator download request: %w", err)
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("emulator download request: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, blobName)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return resp.Body, nil
	}
	r, err := s.client.Bucket(s.cfg.Bucket).Object(blobName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, blobName)
		}
		return nil, fmt.Errorf("open GCS reader: %w", err)
	}
	return r, nil
}

// Upload writes localPath to blobName with the given content type.
func (s *BlobStore) Upload(ctx context.Context, localPath, blobName, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := s.client.Bucket(s.cfg.Bucket).Object(blobName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", blobName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", blobName, err)
	}
	s.log.Debug("Uploaded object", "blob", blobName, "content_type", contentType)
	return nil
}

func emulatorMediaURL(host, bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(host, "/"),
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func emulatorUploadURL(host, bucket, key string) string {
	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", key)
	return fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s",
		strings.TrimRight(host, "/"),
		url.PathEscape(bucket),
		q.Encode(),
	)
}
