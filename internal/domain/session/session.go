package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type FeedbackStatus string

const (
	StatusUnfixed FeedbackStatus = "unfixed"
	StatusFixed   FeedbackStatus = "fixed"
	StatusSkipped FeedbackStatus = "skipped"
)

type VideoType string

const (
	VideoOriginal VideoType = "original"
	VideoPractice VideoType = "practice"
	VideoFinal    VideoType = "final"
)

func (v VideoType) Valid() bool {
	return v == VideoOriginal || v == VideoPractice || v == VideoFinal
}

type FeedbackItem struct {
	TimestampSeconds float64        `json:"timestamp_seconds"`
	Category         string         `json:"category"`
	Severity         string         `json:"severity"`
	Title            string         `json:"title"`
	Action           *string        `json:"action,omitempty"`
	Description      string         `json:"description"`
	Status           FeedbackStatus `json:"status"`
	FixClipURL       *string        `json:"fix_clip_url,omitempty"`
	FixClipBlobName  *string        `json:"fix_clip_blob_name,omitempty"`
	FixFeedback      *string        `json:"fix_feedback,omitempty"`
	FixAttempts      int            `json:"fix_attempts"`
}

type VideoAnalysis struct {
	URL              string         `json:"url"`
	BlobName         string         `json:"blob_name"`
	Score            *int           `json:"score,omitempty"`
	Summary          *string        `json:"summary,omitempty"`
	SongName         *string        `json:"song_name,omitempty"`
	SongArtist       *string        `json:"song_artist,omitempty"`
	FeedbackItems    []FeedbackItem `json:"feedback_items"`
	Strengths        []string       `json:"strengths"`
	ThoughtSignature *string        `json:"thought_signature,omitempty"`
	AnalyzedAt       *time.Time     `json:"analyzed_at,omitempty"`

	// final slot only
	ComparisonSummary *string `json:"comparison_summary,omitempty"`
	IGPostable        *bool   `json:"ig_postable,omitempty"`
	IGVerdict         *string `json:"ig_verdict,omitempty"`
}

type PracticeClip struct {
	ClipNumber       int            `json:"clip_number"`
	URL              string         `json:"url"`
	BlobName         string         `json:"blob_name"`
	SectionStart     *float64       `json:"section_start,omitempty"`
	SectionEnd       *float64       `json:"section_end,omitempty"`
	FocusHint        *string        `json:"focus_hint,omitempty"`
	Feedback         *string        `json:"feedback,omitempty"`
	Score            *int           `json:"score,omitempty"`
	FeedbackItems    []FeedbackItem `json:"feedback_items"`
	Strengths        []string       `json:"strengths"`
	ThoughtSignature *string        `json:"thought_signature,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Session is the durable aggregate of one coaching journey.
type Session struct {
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	OriginalVideo *VideoAnalysis `json:"original_video,omitempty"`
	PracticeClips []PracticeClip `json:"practice_clips"`
	FinalVideo    *VideoAnalysis `json:"final_video,omitempty"`

	Improvement       *int `json:"improvement,omitempty"`
	FeedbackAddressed int  `json:"feedback_addressed"`
	FeedbackTotal     int  `json:"feedback_total"`
}

func New(id, userID string, now time.Time) *Session {
	if userID == "" {
		userID = "anonymous"
	}
	return &Session{
		SessionID:     id,
		UserID:        userID,
		CreatedAt:     now,
		UpdatedAt:     now,
		PracticeClips: []PracticeClip{},
	}
}

// FixResult is the outcome of one fix evaluation for a feedback item.
type FixResult struct {
	Status      FeedbackStatus
	ClipURL     string
	ClipBlob    string
	FixFeedback string
}

func normalizeAnalysis(a *VideoAnalysis, now time.Time) {
	if a.FeedbackItems == nil {
		a.FeedbackItems = []FeedbackItem{}
	}
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	for i := range a.FeedbackItems {
		a.FeedbackItems[i].Status = StatusUnfixed
		a.FeedbackItems[i].FixAttempts = 0
		a.FeedbackItems[i].FixClipURL = nil
		a.FeedbackItems[i].FixClipBlobName = nil
		a.FeedbackItems[i].FixFeedback = nil
	}
	if a.Score != nil && a.AnalyzedAt == nil {
		t := now
		a.AnalyzedAt = &t
	}
}

// SetOriginalVideo replaces the original analysis. Re-analysis resets every fix
// state and fixes feedback_total to the new item count.
func (s *Session) SetOriginalVideo(a VideoAnalysis, now time.Time) {
	normalizeAnalysis(&a, now)
	s.OriginalVideo = &a
	s.FeedbackTotal = len(a.FeedbackItems)
	s.FeedbackAddressed = 0
	s.recomputeImprovement()
	s.UpdatedAt = now
}

// AddPracticeClip appends c and returns its 1-based clip number.
func (s *Session) AddPracticeClip(c PracticeClip, now time.Time) int {
	c.ClipNumber = len(s.PracticeClips) + 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.FeedbackItems == nil {
		c.FeedbackItems = []FeedbackItem{}
	}
	for i := range c.FeedbackItems {
		if c.FeedbackItems[i].Status == "" {
			c.FeedbackItems[i].Status = StatusUnfixed
		}
	}
	if c.Strengths == nil {
		c.Strengths = []string{}
	}
	s.PracticeClips = append(s.PracticeClips, c)
	s.UpdatedAt = now
	return c.ClipNumber
}

func (s *Session) SetFinalVideo(a VideoAnalysis, now time.Time) {
	normalizeAnalysis(&a, now)
	s.FinalVideo = &a
	s.recomputeImprovement()
	s.UpdatedAt = now
}

func (s *Session) recomputeImprovement() {
	s.Improvement = nil
	if s.OriginalVideo == nil || s.FinalVideo == nil {
		return
	}
	if s.OriginalVideo.Score == nil || s.FinalVideo.Score == nil {
		return
	}
	d := *s.FinalVideo.Score - *s.OriginalVideo.Score
	s.Improvement = &d
}

func (s *Session) feedbackItem(index int) (*FeedbackItem, error) {
	if s.OriginalVideo == nil {
		return nil, &Error{Kind: ErrNoOriginal, Msg: fmt.Sprintf("Session %s not found or has no original video", s.SessionID)}
	}
	items := s.OriginalVideo.FeedbackItems
	if index < 0 || index >= len(items) {
		return nil, &Error{Kind: ErrIndexOutOfRange, Msg: fmt.Sprintf("Feedback index %d out of range (0-%d)", index, len(items)-1)}
	}
	return &items[index], nil
}

// UpdateFeedbackItem records one fix evaluation. Every call counts as an attempt.
func (s *Session) UpdateFeedbackItem(index int, r FixResult, now time.Time) error {
	item, err := s.feedbackItem(index)
	if err != nil {
		return err
	}
	if r.Status != StatusFixed && r.Status != StatusUnfixed && r.Status != StatusSkipped {
		return &Error{Kind: ErrInvalidStatus, Msg: fmt.Sprintf("invalid feedback status %q", r.Status)}
	}
	item.Status = r.Status
	item.FixAttempts++
	if r.ClipURL != "" {
		item.FixClipURL = strPtr(r.ClipURL)
	}
	if r.ClipBlob != "" {
		item.FixClipBlobName = strPtr(r.ClipBlob)
	}
	if r.FixFeedback != "" {
		item.FixFeedback = strPtr(r.FixFeedback)
	}
	s.recomputeAddressed()
	s.UpdatedAt = now
	return nil
}

// SkipFeedbackItem marks an item skipped without counting an attempt.
func (s *Session) SkipFeedbackItem(index int, now time.Time) error {
	item, err := s.feedbackItem(index)
	if err != nil {
		return err
	}
	item.Status = StatusSkipped
	s.recomputeAddressed()
	s.UpdatedAt = now
	return nil
}

func (s *Session) recomputeAddressed() {
	n := 0
	if s.OriginalVideo != nil {
		for _, f := range s.OriginalVideo.FeedbackItems {
			if f.Status == StatusFixed {
				n++
			}
		}
	}
	s.FeedbackAddressed = n
}

// FeedbackAt returns a copy of the original-video feedback item at index.
func (s *Session) FeedbackAt(index int) (FeedbackItem, error) {
	item, err := s.feedbackItem(index)
	if err != nil {
		return FeedbackItem{}, err
	}
	return *item, nil
}

func strPtr(s string) *string { return &s }

// formatSeconds renders whole seconds with a trailing ".0" so sections read "12.0-20.5".
func formatSeconds(f float64) string {
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return out
}
