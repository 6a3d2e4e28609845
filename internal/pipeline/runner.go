package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/httpx"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

const (
	statusUploading = "Uploading video to AI..."
	statusAnalyzing = "Analyzing performance..."
)

// runSpec is one upload, stream and extract pass.
type runSpec struct {
	kind      string
	model     string
	localPath string
	mimeType  string
	prompt    string
	search    bool
}

// result is what a run produced before the terminal event.
type result struct {
	raw       string
	parsed    json.RawMessage
	signature *string
}

type runner struct {
	log     *logger.Logger
	backend Backend
	cfg     Config
}

// run drives the shared event sequence. The returned error has already been emitted
// as the stream's error event.
func (r *runner) run(ctx context.Context, spec runSpec, sink stream.Sink) (res *result, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline."+spec.kind,
		attribute.String("pipeline.model", spec.model),
	)
	start := time.Now()
	guard := stream.NewGuard(sink)
	defer func() {
		outcome := "complete"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if emitErr := guard.Emit(ctx, stream.Error(err.Error())); emitErr != nil {
				r.log.Warn("Could not emit pipeline error", "kind", spec.kind, "error", emitErr)
			}
		} else if res != nil && res.parsed == nil {
			outcome = "unparsed"
		}
		_ = guard.Finish(ctx, err)
		observability.Current().ObservePipeline(spec.kind, outcome, time.Since(start))
		span.End()
	}()

	if err := guard.Emit(ctx, stream.Status(statusUploading)); err != nil {
		return nil, err
	}
	file, err := r.upload(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer r.cleanup(ctx, file.Name)

	if err := guard.Emit(ctx, stream.Status(statusAnalyzing)); err != nil {
		return nil, err
	}

	req := gemini.GenerateContentRequest{
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				{FileData: &gemini.FileData{MimeType: file.MimeType, FileURI: file.URI}},
				{Text: spec.prompt},
			},
		}},
		GenerationConfig: &gemini.GenerationConfig{
			ThinkingConfig: &gemini.ThinkingConfig{IncludeThoughts: true},
		},
	}
	if spec.search {
		req.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	}

	var sig stream.SignatureBuilder
	err = r.backend.StreamGenerateContent(ctx, spec.model, req, func(chunk gemini.GenerateContentResponse) error {
		for _, part := range chunk.Parts() {
			if part.ThoughtSignature != "" {
				sig.AddNative(decodeSignature(part.ThoughtSignature))
			}
			switch {
			case part.Thought:
				sig.AddThinking(part.Text)
				if err := guard.Emit(ctx, stream.Thinking(part.Text)); err != nil {
					return err
				}
			case part.Text != "":
				sig.AddText(part.Text)
				if err := guard.Emit(ctx, stream.Analysis(part.Text)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &result{raw: sig.Text(), signature: sig.Signature()}
	content := res.raw
	if obj, ok := stream.ExtractJSON(res.raw); ok {
		withSig, werr := stream.WithField(obj, "thought_signature", res.signature)
		if werr == nil {
			res.parsed = withSig
			content = string(withSig)
		}
	} else {
		r.log.Warn("Model output was not parseable JSON", "kind", spec.kind, "chars", len(res.raw))
	}
	if err := guard.Emit(ctx, stream.Complete(content)); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *runner) upload(ctx context.Context, spec runSpec) (*gemini.File, error) {
	file, err := r.backend.UploadFile(ctx, spec.localPath, spec.mimeType)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	r.log.Info("Video uploaded", "kind", spec.kind, "file", file.Name, "state", file.State)

	var waited time.Duration
	for file.State != gemini.FileStateActive {
		if file.State == gemini.FileStateFailed {
			r.cleanup(ctx, file.Name)
			return nil, &UploadError{File: file.Name, State: file.State}
		}
		if waited >= r.cfg.ReadyTimeout {
			r.cleanup(ctx, file.Name)
			return nil, &UploadTimeoutError{After: r.cfg.ReadyTimeout}
		}
		if err := httpx.Sleep(ctx, r.cfg.PollInterval); err != nil {
			r.cleanup(ctx, file.Name)
			return nil, err
		}
		waited += r.cfg.PollInterval
		next, err := r.backend.GetFile(ctx, file.Name)
		if err != nil {
			r.cleanup(ctx, file.Name)
			return nil, &UploadError{File: file.Name, Err: err}
		}
		file = next
	}
	return file, nil
}

// cleanup deletes the remote file. It runs detached from ctx so a cancelled request
// still releases the upload.
func (r *runner) cleanup(ctx context.Context, name string) {
	if name == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := r.backend.DeleteFile(cctx, name); err != nil {
		r.log.Warn("Failed to delete uploaded file", "file", name, "error", err)
		return
	}
	r.log.Debug("Deleted uploaded file", "file", name)
}

// decodeSignature accepts the base64 form the REST API uses and falls back to raw bytes.
func decodeSignature(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
