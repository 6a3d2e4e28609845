package pipeline

import (
	"context"
	"encoding/json"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

// FeedbackBrief is the single feedback item a fix clip is judged against.
type FeedbackBrief struct {
	Title            string
	Category         string
	Severity         string
	Description      string
	Action           string
	TimestampSeconds float64
}

type FixInput struct {
	LocalPath string
	MimeType  string
	Item      FeedbackBrief
}

type FixOutcome struct {
	Raw       string
	Parsed    json.RawMessage
	Verdict   *FixVerdict
	Signature *string
}

type FixEvaluationPipeline struct {
	runner
	prompts *Prompts
}

func NewFixEvaluationPipeline(log *logger.Logger, backend Backend, prompts *Prompts, cfg Config) *FixEvaluationPipeline {
	return &FixEvaluationPipeline{
		runner:  runner{log: log.With("service", "FixEvaluationPipeline"), backend: backend, cfg: cfg.withDefaults()},
		prompts: prompts,
	}
}

func (p *FixEvaluationPipeline) Run(ctx context.Context, in FixInput, sink stream.Sink) (*FixOutcome, error) {
	prompt, err := p.prompts.FixEvaluation(in.Item)
	if err != nil {
		return nil, emitSetupError(ctx, sink, err)
	}
	mime := in.MimeType
	if mime == "" {
		mime = "video/mp4"
	}
	res, err := p.run(ctx, runSpec{
		kind:      "fix_evaluation",
		model:     p.cfg.FixEvalModel,
		localPath: in.LocalPath,
		mimeType:  mime,
		prompt:    prompt,
	}, sink)
	if err != nil {
		return nil, err
	}

	out := &FixOutcome{Raw: res.raw, Parsed: res.parsed, Signature: res.signature}
	if res.parsed != nil {
		v, derr := decodeVerdict(res.parsed)
		if derr != nil {
			p.log.Warn("Fix evaluation JSON has an unexpected shape", "error", derr)
		} else {
			out.Verdict = v
		}
	}
	return out, nil
}
