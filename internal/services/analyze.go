package services

import (
	"context"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/pipeline"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

type Analyzer interface {
	Run(ctx context.Context, in pipeline.AnalysisInput, sink stream.Sink) (*pipeline.Outcome, error)
}

// AnalyzeRequest names an uploaded video and, optionally, the session slot its result fills.
type AnalyzeRequest struct {
	VideoURL  string           `json:"video_url"`
	SessionID string           `json:"session_id,omitempty"`
	VideoType domain.VideoType `json:"video_type,omitempty"`

	SectionStart *float64 `json:"section_start,omitempty"`
	SectionEnd   *float64 `json:"section_end,omitempty"`
	FocusHint    *string  `json:"focus_hint,omitempty"`
}

func (r AnalyzeRequest) Validate() error {
	if r.VideoURL == "" {
		return apierr.Invalid("missing_video_url", "video_url is required")
	}
	if r.VideoType != "" && !r.VideoType.Valid() {
		return apierr.Invalid("invalid_video_type", "video_type must be original, practice or final")
	}
	return nil
}

// persists reports whether a completed analysis is written to a session.
func (r AnalyzeRequest) persists() bool {
	return r.SessionID != "" && r.VideoType != ""
}

type AnalyzeService interface {
	// Stream runs one analysis onto sink. The stream always ends with exactly one
	// complete or error event; the returned error mirrors a terminal error.
	Stream(ctx context.Context, req AnalyzeRequest, sink stream.Sink) error
}

type analyzeService struct {
	log        *logger.Logger
	blobs      BlobStore
	transcoder VideoTranscoder
	analyzer   Analyzer
	sessions   SessionService
	workDir    string
}

func NewAnalyzeService(
	log *logger.Logger,
	blobs BlobStore,
	transcoder VideoTranscoder,
	analyzer Analyzer,
	sessions SessionService,
	workDir string,
) AnalyzeService {
	return &analyzeService{
		log:        log.With("service", "AnalyzeService"),
		blobs:      blobs,
		transcoder: transcoder,
		analyzer:   analyzer,
		sessions:   sessions,
		workDir:    workDir,
	}
}

func (s *analyzeService) Stream(ctx context.Context, req AnalyzeRequest, sink stream.Sink) (err error) {
	guard := stream.NewGuard(sink)
	defer func() {
		if ferr := guard.Finish(ctx, err); ferr != nil {
			s.log.Debug("Could not deliver terminal event", "error", ferr)
		}
	}()
	if err := req.Validate(); err != nil {
		return err
	}

	media := newLocalMedia(s.blobs, s.transcoder, s.workDir)
	defer media.cleanup()

	if err := guard.Emit(ctx, stream.Status("Downloading video...")); err != nil {
		return err
	}
	if err := media.download(ctx, req.VideoURL); err != nil {
		s.log.Warn("Download failed", "blob", req.VideoURL, "error", err)
		return err
	}
	if err := guard.Emit(ctx, stream.Status("Converting video format...")); err != nil {
		return err
	}
	mp4, err := media.convert(ctx)
	if err != nil {
		s.log.Warn("Conversion failed", "blob", req.VideoURL, "error", err)
		return err
	}

	in := pipeline.AnalysisInput{LocalPath: mp4, MimeType: "video/mp4"}
	if req.VideoType == domain.VideoFinal && req.SessionID != "" {
		in.Prior = s.priorContext(ctx, req.SessionID)
	}
	out, err := s.analyzer.Run(ctx, in, guard)
	if err != nil {
		return err
	}
	if req.persists() {
		s.persist(context.WithoutCancel(ctx), req, out)
	}
	return nil
}

// priorContext loads the original take for the final comparison. A session without
// an original falls back to a plain analysis.
func (s *analyzeService) priorContext(ctx context.Context, sessionID string) *pipeline.PriorContext {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil || sess.OriginalVideo == nil {
		if err != nil {
			s.log.Warn("Final analysis without prior context", "session_id", sessionID, "error", err)
		}
		return nil
	}
	o := sess.OriginalVideo
	prior := &pipeline.PriorContext{Score: o.Score}
	if o.Summary != nil {
		prior.Summary = *o.Summary
	}
	for _, f := range o.FeedbackItems {
		prior.Feedback = append(prior.Feedback, pipeline.PriorFeedback{
			Title:    f.Title,
			Category: f.Category,
			Severity: f.Severity,
			Status:   string(f.Status),
		})
	}
	return prior
}

// persist writes a structured result into the requested slot. Failures are logged only:
// the stream has already completed.
func (s *analyzeService) persist(ctx context.Context, req AnalyzeRequest, out *pipeline.Outcome) {
	if out == nil || out.Report == nil {
		s.log.Info("Analysis not persisted: no structured result", "session_id", req.SessionID)
		return
	}
	url, err := s.blobs.SignedDownloadURL(ctx, req.VideoURL)
	if err != nil {
		s.log.Warn("Could not sign download url for analysis", "blob", req.VideoURL, "error", err)
	}
	report := out.Report
	signature := report.ThoughtSignature
	if signature == nil {
		signature = out.Signature
	}

	switch req.VideoType {
	case domain.VideoOriginal:
		_, err = s.sessions.SetOriginal(ctx, req.SessionID, videoAnalysisFromReport(report, url, req.VideoURL, signature))
	case domain.VideoFinal:
		_, err = s.sessions.SetFinal(ctx, req.SessionID, videoAnalysisFromReport(report, url, req.VideoURL, signature))
	case domain.VideoPractice:
		clip := domain.PracticeClip{
			URL:              url,
			BlobName:         req.VideoURL,
			SectionStart:     req.SectionStart,
			SectionEnd:       req.SectionEnd,
			FocusHint:        req.FocusHint,
			Feedback:         report.Summary,
			Score:            report.Score(),
			FeedbackItems:    feedbackFromReport(report.FeedbackItems),
			Strengths:        report.Strengths,
			ThoughtSignature: signature,
		}
		_, err = s.sessions.AddPracticeClip(ctx, req.SessionID, clip)
	}
	if err != nil {
		s.log.Error("Failed to persist analysis", "session_id", req.SessionID, "video_type", req.VideoType, "error", err)
		return
	}
	s.log.Info("Saved analysis to session", "session_id", req.SessionID, "video_type", req.VideoType)
}

func videoAnalysisFromReport(r *pipeline.AnalysisReport, url, blobName string, signature *string) domain.VideoAnalysis {
	return domain.VideoAnalysis{
		URL:               url,
		BlobName:          blobName,
		Score:             r.Score(),
		Summary:           r.Summary,
		SongName:          r.SongName,
		SongArtist:        r.SongArtist,
		FeedbackItems:     feedbackFromReport(r.FeedbackItems),
		Strengths:         r.Strengths,
		ThoughtSignature:  signature,
		ComparisonSummary: r.ComparisonSummary,
		IGPostable:        r.IGPostable,
		IGVerdict:         r.IGVerdict,
	}
}

func feedbackFromReport(items []pipeline.ReportItem) []domain.FeedbackItem {
	out := make([]domain.FeedbackItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.FeedbackItem{
			TimestampSeconds: it.TimestampSeconds,
			Category:         it.Category,
			Severity:         it.Severity,
			Title:            it.Title,
			Action:           it.Action,
			Description:      it.Description,
			Status:           domain.StatusUnfixed,
		})
	}
	return out
}
