package pipeline

import (
	"encoding/json"
	"math"
)

// ReportItem is one feedback item as the model reports it.
type ReportItem struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Category         string  `json:"category"`
	Severity         string  `json:"severity"`
	Title            string  `json:"title"`
	Action           *string `json:"action,omitempty"`
	Description      string  `json:"description"`
}

// AnalysisReport is the structured result of an analysis run. Final-take fields are
// nil for other runs.
type AnalysisReport struct {
	OverallScore  *float64     `json:"overall_score"`
	Summary       *string      `json:"summary"`
	SongName      *string      `json:"song_name"`
	SongArtist    *string      `json:"song_artist"`
	FeedbackItems []ReportItem `json:"feedback_items"`
	Strengths     []string     `json:"strengths"`

	ComparisonSummary *string `json:"comparison_summary"`
	IGPostable        *bool   `json:"ig_postable"`
	IGVerdict         *string `json:"ig_verdict"`

	ThoughtSignature *string `json:"thought_signature"`
}

// Score returns the overall score rounded and clamped to 0..100.
func (r *AnalysisReport) Score() *int {
	if r == nil || r.OverallScore == nil {
		return nil
	}
	v := int(math.Round(*r.OverallScore))
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

func decodeReport(parsed json.RawMessage) (*AnalysisReport, error) {
	var r AnalysisReport
	if err := json.Unmarshal(parsed, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FixVerdict is the structured result of a fix evaluation.
type FixVerdict struct {
	IsFixed          bool    `json:"is_fixed"`
	Explanation      string  `json:"explanation"`
	Tips             *string `json:"tips,omitempty"`
	ThoughtSignature *string `json:"thought_signature,omitempty"`
}

func decodeVerdict(parsed json.RawMessage) (*FixVerdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(parsed, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["is_fixed"]; !ok {
		return nil, errMissingVerdict
	}
	var v FixVerdict
	if err := json.Unmarshal(parsed, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
