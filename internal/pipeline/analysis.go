package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

// PriorFeedback is one original-take item as shown to the final-take comparison.
type PriorFeedback struct {
	Title    string
	Category string
	Severity string
	Status   string
}

// PriorContext carries the original take into the final-take comparison prompt.
type PriorContext struct {
	Score    *int
	Summary  string
	Feedback []PriorFeedback
}

type AnalysisInput struct {
	LocalPath string
	MimeType  string
	// Prior selects the final-take comparison variant when set.
	Prior *PriorContext
}

// Outcome is what a completed analysis stream produced.
type Outcome struct {
	Raw string
	// Parsed is the extracted JSON object including thought_signature, nil when the
	// output was not parseable.
	Parsed    json.RawMessage
	Report    *AnalysisReport
	Signature *string
}

type AnalysisPipeline struct {
	runner
	prompts *Prompts
}

func NewAnalysisPipeline(log *logger.Logger, backend Backend, prompts *Prompts, cfg Config) *AnalysisPipeline {
	return &AnalysisPipeline{
		runner:  runner{log: log.With("service", "AnalysisPipeline"), backend: backend, cfg: cfg.withDefaults()},
		prompts: prompts,
	}
}

// Run streams one analysis to sink. Exactly one terminal event is emitted on every path;
// a non-nil error has already been reported on the stream.
func (p *AnalysisPipeline) Run(ctx context.Context, in AnalysisInput, sink stream.Sink) (*Outcome, error) {
	kind := "analysis"
	var (
		prompt string
		err    error
	)
	if in.Prior != nil {
		kind = "analysis_final"
		prompt, err = p.prompts.Final(*in.Prior)
	} else {
		prompt, err = p.prompts.Analysis()
	}
	if err != nil {
		return nil, emitSetupError(ctx, sink, err)
	}
	mime := in.MimeType
	if mime == "" {
		mime = "video/mp4"
	}

	res, err := p.run(ctx, runSpec{
		kind:      kind,
		model:     p.cfg.AnalysisModel,
		localPath: in.LocalPath,
		mimeType:  mime,
		prompt:    prompt,
		search:    true,
	}, sink)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Raw: res.raw, Parsed: res.parsed, Signature: res.signature}
	if res.parsed != nil {
		report, derr := decodeReport(res.parsed)
		if derr != nil {
			p.log.Warn("Analysis JSON has an unexpected shape", "error", derr)
		} else {
			out.Report = report
			p.log.Info("Analysis parsed", "score", report.Score(), "items", len(report.FeedbackItems))
		}
	}
	return out, nil
}

func emitSetupError(ctx context.Context, sink stream.Sink, err error) error {
	err = fmt.Errorf("prepare prompt: %w", err)
	_ = stream.NewGuard(sink).Finish(ctx, err)
	return err
}
