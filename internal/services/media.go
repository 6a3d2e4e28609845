package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/localmedia"
)

// BlobStore is the subset of gcp.BlobStore the services depend on.
type BlobStore interface {
	SignedUploadURL(ctx context.Context, blobName, contentType string) (string, error)
	SignedDownloadURL(ctx context.Context, blobName string) (string, error)
	Download(ctx context.Context, blobName, localPath string) error
	Upload(ctx context.Context, localPath, blobName, contentType string) error
}

type VideoTranscoder interface {
	Convert(ctx context.Context, inputPath string) (string, error)
	ConvertTo(ctx context.Context, inputPath, outPath string) error
}

// WorkDirFromEnv is where downloaded and converted media live while a request runs.
func WorkDirFromEnv() string {
	return envutil.String("MEDIA_WORK_DIR", filepath.Join(os.TempDir(), "cringe-alert"))
}

// localMedia tracks the files one request created so they can be removed on every path.
type localMedia struct {
	blobs      BlobStore
	transcoder VideoTranscoder
	workDir    string

	source    string
	converted string
}

func newLocalMedia(blobs BlobStore, transcoder VideoTranscoder, workDir string) *localMedia {
	return &localMedia{blobs: blobs, transcoder: transcoder, workDir: workDir}
}

func (m *localMedia) download(ctx context.Context, blobName string) error {
	if strings.TrimSpace(blobName) == "" {
		return fmt.Errorf("video_url is required")
	}
	m.source = filepath.Join(m.workDir, uuid.NewString()+"_"+filepath.Base(blobName))
	if err := m.blobs.Download(ctx, blobName, m.source); err != nil {
		return fmt.Errorf("download %s: %w", blobName, err)
	}
	return nil
}

// convert produces an mp4 copy of the downloaded file. Inputs that are already
// mp4 are re-encoded into a sibling file so ffmpeg never reads and writes one path.
func (m *localMedia) convert(ctx context.Context) (string, error) {
	if strings.EqualFold(filepath.Ext(m.source), ".mp4") {
		m.converted = strings.TrimSuffix(m.source, filepath.Ext(m.source)) + ".converted.mp4"
		if err := m.transcoder.ConvertTo(ctx, m.source, m.converted); err != nil {
			return "", err
		}
		return m.converted, nil
	}
	out, err := m.transcoder.Convert(ctx, m.source)
	m.converted = out
	if err != nil {
		return "", err
	}
	return out, nil
}

func (m *localMedia) cleanup() {
	localmedia.RemoveAll(m.source, m.converted)
}

// convertedBlobName is where the converted copy of blobName is stored.
func convertedBlobName(blobName string) string {
	if strings.EqualFold(filepath.Ext(blobName), ".mp4") {
		return strings.TrimSuffix(blobName, filepath.Ext(blobName)) + ".converted.mp4"
	}
	return localmedia.OutputPath(blobName)
}
