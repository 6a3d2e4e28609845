package services

import (
	"context"
	"strings"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/pipeline"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

type FixEvaluator interface {
	Run(ctx context.Context, in pipeline.FixInput, sink stream.Sink) (*pipeline.FixOutcome, error)
}

type FixRequest struct {
	SessionID     string `json:"session_id"`
	FeedbackIndex *int   `json:"feedback_index"`
	VideoURL      string `json:"video_url"`
}

func (r FixRequest) Validate() error {
	switch {
	case r.SessionID == "":
		return apierr.Invalid("missing_session_id", "session_id is required")
	case r.FeedbackIndex == nil:
		return apierr.Invalid("missing_feedback_index", "feedback_index is required")
	case r.VideoURL == "":
		return apierr.Invalid("missing_video_url", "video_url is required")
	}
	return nil
}

type FixService interface {
	// Stream evaluates one fix clip against one feedback item and records the verdict.
	Stream(ctx context.Context, req FixRequest, sink stream.Sink) error
}

type fixService struct {
	log        *logger.Logger
	blobs      BlobStore
	transcoder VideoTranscoder
	evaluator  FixEvaluator
	sessions   SessionService
	workDir    string
}

func NewFixService(
	log *logger.Logger,
	blobs BlobStore,
	transcoder VideoTranscoder,
	evaluator FixEvaluator,
	sessions SessionService,
	workDir string,
) FixService {
	return &fixService{
		log:        log.With("service", "FixService"),
		blobs:      blobs,
		transcoder: transcoder,
		evaluator:  evaluator,
		sessions:   sessions,
		workDir:    workDir,
	}
}

func (s *fixService) Stream(ctx context.Context, req FixRequest, sink stream.Sink) (err error) {
	guard := stream.NewGuard(sink)
	defer func() {
		if ferr := guard.Finish(ctx, err); ferr != nil {
			s.log.Debug("Could not deliver terminal event", "error", ferr)
		}
	}()
	if err := req.Validate(); err != nil {
		return err
	}
	index := *req.FeedbackIndex

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return err
	}
	item, err := sess.FeedbackAt(index)
	if err != nil {
		return err
	}

	media := newLocalMedia(s.blobs, s.transcoder, s.workDir)
	defer media.cleanup()

	if err := guard.Emit(ctx, stream.Status("Downloading fix clip...")); err != nil {
		return err
	}
	if err := media.download(ctx, req.VideoURL); err != nil {
		return err
	}
	if err := guard.Emit(ctx, stream.Status("Converting video format...")); err != nil {
		return err
	}
	mp4, err := media.convert(ctx)
	if err != nil {
		return err
	}

	out, err := s.evaluator.Run(ctx, pipeline.FixInput{
		LocalPath: mp4,
		MimeType:  "video/mp4",
		Item:      briefFromItem(item),
	}, guard)
	if err != nil {
		return err
	}
	if out == nil || out.Verdict == nil {
		s.log.Info("Fix evaluation not persisted: no structured verdict", "session_id", req.SessionID, "feedback_index", index)
		return nil
	}
	s.record(context.WithoutCancel(ctx), req, index, out.Verdict)
	return nil
}

// record applies the verdict to the one feedback item. Failures are logged only.
func (s *fixService) record(ctx context.Context, req FixRequest, index int, v *pipeline.FixVerdict) {
	url, err := s.blobs.SignedDownloadURL(ctx, req.VideoURL)
	if err != nil {
		s.log.Warn("Could not sign download url for fix clip", "blob", req.VideoURL, "error", err)
	}
	status := domain.StatusUnfixed
	if v.IsFixed {
		status = domain.StatusFixed
	}
	_, err = s.sessions.UpdateFeedback(ctx, req.SessionID, index, domain.FixResult{
		Status:      status,
		ClipURL:     url,
		ClipBlob:    req.VideoURL,
		FixFeedback: fixFeedbackText(v),
	})
	if err != nil {
		s.log.Error("Failed to record fix verdict", "session_id", req.SessionID, "feedback_index", index, "error", err)
		return
	}
	s.log.Info("Recorded fix verdict", "session_id", req.SessionID, "feedback_index", index, "is_fixed", v.IsFixed)
}

func briefFromItem(item domain.FeedbackItem) pipeline.FeedbackBrief {
	b := pipeline.FeedbackBrief{
		Title:            item.Title,
		Category:         item.Category,
		Severity:         item.Severity,
		Description:      item.Description,
		TimestampSeconds: item.TimestampSeconds,
	}
	if item.Action != nil {
		b.Action = *item.Action
	}
	return b
}

func fixFeedbackText(v *pipeline.FixVerdict) string {
	text := strings.TrimSpace(v.Explanation)
	if v.Tips != nil && strings.TrimSpace(*v.Tips) != "" {
		if text != "" {
			text += "\n\n"
		}
		text += "Tips: " + strings.TrimSpace(*v.Tips)
	}
	return text
}
