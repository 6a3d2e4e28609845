package session

import "time"

type FeedbackContext struct {
	Index       int            `json:"index"`
	Title       string         `json:"title"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Action      *string        `json:"action"`
	Status      FeedbackStatus `json:"status"`
}

type ClipContext struct {
	ClipNumber int     `json:"clip_number"`
	FocusHint  *string `json:"focus_hint"`
	Section    *string `json:"section"`
}

type OriginalContext struct {
	OriginalScore     *int              `json:"original_score"`
	OriginalSummary   *string           `json:"original_summary"`
	OriginalFeedback  []FeedbackContext `json:"original_feedback"`
	OriginalStrengths []string          `json:"original_strengths"`
	FeedbackAddressed int               `json:"feedback_addressed"`
	FeedbackTotal     int               `json:"feedback_total"`
}

type FinalContext struct {
	FinalScore  *int `json:"final_score"`
	Improvement *int `json:"improvement"`
}

// Context is the coaching snapshot of a session. The embedded groups are omitted
// from JSON when the matching video is absent.
type Context struct {
	SessionID         string `json:"session_id"`
	HasOriginal       bool   `json:"has_original"`
	PracticeClipCount int    `json:"practice_clip_count"`
	HasFinal          bool   `json:"has_final"`
	*OriginalContext
	PracticeClips []ClipContext `json:"practice_clips,omitempty"`
	*FinalContext
}

func (s *Session) Context() Context {
	c := Context{
		SessionID:         s.SessionID,
		HasOriginal:       s.OriginalVideo != nil,
		PracticeClipCount: len(s.PracticeClips),
		HasFinal:          s.FinalVideo != nil,
	}
	if o := s.OriginalVideo; o != nil {
		fb := make([]FeedbackContext, 0, len(o.FeedbackItems))
		for i, f := range o.FeedbackItems {
			fb = append(fb, FeedbackContext{
				Index:       i,
				Title:       f.Title,
				Category:    f.Category,
				Severity:    f.Severity,
				Description: f.Description,
				Action:      f.Action,
				Status:      f.Status,
			})
		}
		strengths := o.Strengths
		if strengths == nil {
			strengths = []string{}
		}
		c.OriginalContext = &OriginalContext{
			OriginalScore:     o.Score,
			OriginalSummary:   o.Summary,
			OriginalFeedback:  fb,
			OriginalStrengths: strengths,
			FeedbackAddressed: s.FeedbackAddressed,
			FeedbackTotal:     s.FeedbackTotal,
		}
	}
	for _, clip := range s.PracticeClips {
		cc := ClipContext{ClipNumber: clip.ClipNumber, FocusHint: clip.FocusHint}
		if clip.SectionStart != nil && *clip.SectionStart != 0 {
			end := "None"
			if clip.SectionEnd != nil {
				end = formatSeconds(*clip.SectionEnd)
			}
			cc.Section = strPtr(formatSeconds(*clip.SectionStart) + "-" + end)
		}
		c.PracticeClips = append(c.PracticeClips, cc)
	}
	if s.FinalVideo != nil {
		c.FinalContext = &FinalContext{FinalScore: s.FinalVideo.Score, Improvement: s.Improvement}
	}
	return c
}

// Summary is the list/detail view of a session.
type Summary struct {
	SessionID         string    `json:"session_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	HasOriginal       bool      `json:"has_original"`
	HasFinal          bool      `json:"has_final"`
	PracticeClipCount int       `json:"practice_clip_count"`
	OriginalScore     *int      `json:"original_score"`
	FinalScore        *int      `json:"final_score"`
	Improvement       *int      `json:"improvement"`
	FeedbackAddressed int       `json:"feedback_addressed"`
	FeedbackTotal     int       `json:"feedback_total"`
}

func (s *Session) Summary() Summary {
	sum := Summary{
		SessionID:         s.SessionID,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		HasOriginal:       s.OriginalVideo != nil,
		HasFinal:          s.FinalVideo != nil,
		PracticeClipCount: len(s.PracticeClips),
		Improvement:       s.Improvement,
		FeedbackAddressed: s.FeedbackAddressed,
		FeedbackTotal:     s.FeedbackTotal,
	}
	if s.OriginalVideo != nil {
		sum.OriginalScore = s.OriginalVideo.Score
	}
	if s.FinalVideo != nil {
		sum.FinalScore = s.FinalVideo.Score
	}
	return sum
}
