package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const (
	uploadPrefix       = "uploads/"
	defaultContentType = "video/webm"
)

type UploadTarget struct {
	UploadURL   string `json:"upload_url"`
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
}

type UploadService interface {
	SignedURL(ctx context.Context, filename, contentType string) (*UploadTarget, error)
	DownloadURL(ctx context.Context, blobName string) (string, error)
	// RefreshURLs re-signs every stored download URL of sess in place. Blobs that
	// cannot be signed keep their stored URL.
	RefreshURLs(ctx context.Context, sess *domain.Session)
}

type uploadService struct {
	log   *logger.Logger
	blobs BlobStore
}

func NewUploadService(log *logger.Logger, blobs BlobStore) UploadService {
	return &uploadService{log: log.With("service", "UploadService"), blobs: blobs}
}

func (s *uploadService) SignedURL(ctx context.Context, filename, contentType string) (*UploadTarget, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apierr.Invalid("missing_filename", "filename is required")
	}
	if strings.Contains(filename, "..") || strings.HasPrefix(filename, "/") {
		return nil, apierr.Invalid("invalid_filename", "filename %q is not allowed", filename)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	blobName := path.Join(uploadPrefix, filename)

	uploadURL, err := s.blobs.SignedUploadURL(ctx, blobName, contentType)
	if err != nil {
		return nil, fmt.Errorf("signed upload url: %w", err)
	}
	downloadURL, err := s.blobs.SignedDownloadURL(ctx, blobName)
	if err != nil {
		return nil, fmt.Errorf("signed download url: %w", err)
	}
	s.log.Debug("Issued upload url", "blob", blobName, "content_type", contentType)
	return &UploadTarget{UploadURL: uploadURL, DownloadURL: downloadURL, Filename: blobName}, nil
}

func (s *uploadService) DownloadURL(ctx context.Context, blobName string) (string, error) {
	if blobName == "" {
		return "", nil
	}
	return s.blobs.SignedDownloadURL(ctx, blobName)
}

func (s *uploadService) RefreshURLs(ctx context.Context, sess *domain.Session) {
	if sess == nil {
		return
	}
	sign := func(blobName string, dst *string) {
		if blobName == "" {
			return
		}
		u, err := s.blobs.SignedDownloadURL(ctx, blobName)
		if err != nil {
			s.log.Warn("Could not re-sign download url", "blob", blobName, "error", err)
			return
		}
		*dst = u
	}
	signItems := func(items []domain.FeedbackItem) {
		for i := range items {
			if items[i].FixClipBlobName != nil && items[i].FixClipURL != nil {
				sign(*items[i].FixClipBlobName, items[i].FixClipURL)
			}
		}
	}
	for _, v := range []*domain.VideoAnalysis{sess.OriginalVideo, sess.FinalVideo} {
		if v == nil {
			continue
		}
		sign(v.BlobName, &v.URL)
		signItems(v.FeedbackItems)
	}
	for i := range sess.PracticeClips {
		sign(sess.PracticeClips[i].BlobName, &sess.PracticeClips[i].URL)
		signItems(sess.PracticeClips[i].FeedbackItems)
	}
}
