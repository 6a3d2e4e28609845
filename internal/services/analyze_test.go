package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/pipeline"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

type fakeBlobs struct {
	mu          sync.Mutex
	downloadErr error
	downloaded  []string
	uploaded    map[string]string
}

func (f *fakeBlobs) SignedUploadURL(_ context.Context, blob, contentType string) (string, error) {
	return "https://put.example/" + blob + "?ct=" + contentType, nil
}

func (f *fakeBlobs) SignedDownloadURL(_ context.Context, blob string) (string, error) {
	return "https://get.example/" + blob, nil
}

func (f *fakeBlobs) Download(_ context.Context, blob, localPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	f.mu.Lock()
	f.downloaded = append(f.downloaded, localPath)
	f.mu.Unlock()
	return os.WriteFile(localPath, []byte("webm:"+blob), 0o644)
}

func (f *fakeBlobs) Upload(_ context.Context, localPath, blob, _ string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[blob] = string(b)
	return nil
}

type copyTranscoder struct{ err error }

func (c copyTranscoder) Convert(ctx context.Context, in string) (string, error) {
	out := strings.TrimSuffix(in, ".webm") + ".mp4"
	return out, c.ConvertTo(ctx, in, out)
}

func (c copyTranscoder) ConvertTo(_ context.Context, in, out string) error {
	if c.err != nil {
		return c.err
	}
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("mp4:"), b...), 0o644)
}

type fakeAnalyzer struct {
	report string
	got    pipeline.AnalysisInput
	seen   []byte
}

func (f *fakeAnalyzer) Run(ctx context.Context, in pipeline.AnalysisInput, sink stream.Sink) (*pipeline.Outcome, error) {
	f.got = in
	f.seen, _ = os.ReadFile(in.LocalPath)
	_ = sink.Emit(ctx, stream.Status("Uploading video to AI..."))
	_ = sink.Emit(ctx, stream.Analysis(f.report))
	var report pipeline.AnalysisReport
	if err := json.Unmarshal([]byte(f.report), &report); err != nil {
		_ = sink.Emit(ctx, stream.Complete(f.report))
		return &pipeline.Outcome{Raw: f.report}, nil
	}
	_ = sink.Emit(ctx, stream.Complete(f.report))
	return &pipeline.Outcome{Raw: f.report, Parsed: json.RawMessage(f.report), Report: &report}, nil
}

const sampleReport = `{"overall_score": 61.6, "summary": "ok", "song_name": "Wonderwall", "feedback_items": [
 {"timestamp_seconds": 3.5, "category": "vocals", "severity": "critical", "title": "Flat chorus", "description": "d"},
 {"timestamp_seconds": 9, "category": "timing", "severity": "minor", "title": "Rushed", "description": "d"}
], "strengths": ["tone"], "thought_signature": "ts_abc"}`

func TestAnalyzeStreamPersistsOriginal(t *testing.T) {
	sessions, _ := newTestSessionService(t)
	blobs := &fakeBlobs{}
	analyzer := &fakeAnalyzer{report: sampleReport}
	workDir := t.TempDir()
	svc := NewAnalyzeService(logger.Nop(), blobs, copyTranscoder{}, analyzer, sessions, workDir)

	id := uuid.NewString()
	var rec stream.Recorder
	err := svc.Stream(context.Background(), AnalyzeRequest{VideoURL: "uploads/take1.webm", SessionID: id, VideoType: domain.VideoOriginal}, &rec)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	types := rec.Types()
	want := []stream.EventType{stream.EventStatus, stream.EventStatus, stream.EventStatus, stream.EventAnalysis, stream.EventComplete}
	if len(types) != len(want) {
		t.Fatalf("event types: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: want=%s got=%s", i, want[i], types[i])
		}
	}
	if rec.Events()[0].Content != "Downloading video..." || rec.Events()[1].Content != "Converting video format..." {
		t.Fatalf("status events: %+v", rec.Events()[:2])
	}
	if !strings.HasPrefix(string(analyzer.seen), "mp4:") {
		t.Fatalf("analyzer should receive converted media, got %q", analyzer.seen)
	}

	sess, err := sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	o := sess.OriginalVideo
	if o == nil || o.Score == nil || *o.Score != 62 {
		t.Fatalf("original: %+v", o)
	}
	if o.BlobName != "uploads/take1.webm" || o.URL != "https://get.example/uploads/take1.webm" {
		t.Fatalf("storage ref: %s %s", o.BlobName, o.URL)
	}
	if o.ThoughtSignature == nil || *o.ThoughtSignature != "ts_abc" {
		t.Fatalf("signature: %v", o.ThoughtSignature)
	}
	if sess.FeedbackTotal != 2 {
		t.Fatalf("feedback total: %d", sess.FeedbackTotal)
	}
	assertEmptyDir(t, workDir)
}

func TestAnalyzeStreamFinalUsesPriorContext(t *testing.T) {
	sessions, _ := newTestSessionService(t)
	id := uuid.NewString()
	if _, err := sessions.SetOriginal(context.Background(), id, analysisWith(40, 1)); err != nil {
		t.Fatalf("SetOriginal: %v", err)
	}
	analyzer := &fakeAnalyzer{report: `{"overall_score": 75, "feedback_items": [], "strengths": [], "ig_postable": true}`}
	svc := NewAnalyzeService(logger.Nop(), &fakeBlobs{}, copyTranscoder{}, analyzer, sessions, t.TempDir())

	var rec stream.Recorder
	if err := svc.Stream(context.Background(), AnalyzeRequest{VideoURL: "uploads/final.webm", SessionID: id, VideoType: domain.VideoFinal}, &rec); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if analyzer.got.Prior == nil || analyzer.got.Prior.Score == nil || *analyzer.got.Prior.Score != 40 {
		t.Fatalf("prior context: %+v", analyzer.got.Prior)
	}
	if len(analyzer.got.Prior.Feedback) != 1 || analyzer.got.Prior.Feedback[0].Status != "unfixed" {
		t.Fatalf("prior feedback: %+v", analyzer.got.Prior.Feedback)
	}
	sess, err := sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Improvement == nil || *sess.Improvement != 35 {
		t.Fatalf("improvement: %v", sess.Improvement)
	}
	if sess.FinalVideo.IGPostable == nil || !*sess.FinalVideo.IGPostable {
		t.Fatalf("ig_postable not stored")
	}
}

func TestAnalyzeStreamPracticeClip(t *testing.T) {
	sessions, _ := newTestSessionService(t)
	id := uuid.NewString()
	svc := NewAnalyzeService(logger.Nop(), &fakeBlobs{}, copyTranscoder{}, &fakeAnalyzer{report: sampleReport}, sessions, t.TempDir())

	start, end := 12.0, 20.5
	hint := "chorus"
	req := AnalyzeRequest{VideoURL: "uploads/p1.webm", SessionID: id, VideoType: domain.VideoPractice, SectionStart: &start, SectionEnd: &end, FocusHint: &hint}
	for i := 0; i < 2; i++ {
		var rec stream.Recorder
		if err := svc.Stream(context.Background(), req, &rec); err != nil {
			t.Fatalf("Stream: %v", err)
		}
	}
	sess, err := sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.PracticeClips) != 2 || sess.PracticeClips[1].ClipNumber != 2 {
		t.Fatalf("clips: %+v", sess.PracticeClips)
	}
	c := sess.Context()
	if len(c.PracticeClips) != 2 || c.PracticeClips[0].Section == nil || *c.PracticeClips[0].Section != "12.0-20.5" {
		t.Fatalf("clip context: %+v", c.PracticeClips)
	}
}

func TestAnalyzeStreamUnparsedIsNotPersisted(t *testing.T) {
	sessions, _ := newTestSessionService(t)
	id := uuid.NewString()
	svc := NewAnalyzeService(logger.Nop(), &fakeBlobs{}, copyTranscoder{}, &fakeAnalyzer{report: "not json at all"}, sessions, t.TempDir())

	var rec stream.Recorder
	if err := svc.Stream(context.Background(), AnalyzeRequest{VideoURL: "uploads/x.webm", SessionID: id, VideoType: domain.VideoOriginal}, &rec); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	last, _ := rec.Last()
	if last.Type != stream.EventComplete || last.Content != "not json at all" {
		t.Fatalf("last event: %+v", last)
	}
	if _, err := sessions.Get(context.Background(), id); err == nil {
		t.Fatalf("session should not exist")
	}
}

func TestAnalyzeStreamFailuresEndWithOneError(t *testing.T) {
	cases := map[string]struct {
		blobs *fakeBlobs
		tc    copyTranscoder
		req   AnalyzeRequest
		want  string
	}{
		"download": {&fakeBlobs{downloadErr: errors.New("boom")}, copyTranscoder{}, AnalyzeRequest{VideoURL: "uploads/a.webm"}, "boom"},
		"convert":  {&fakeBlobs{}, copyTranscoder{err: errors.New("ffmpeg exploded")}, AnalyzeRequest{VideoURL: "uploads/a.webm"}, "ffmpeg exploded"},
		"invalid":  {&fakeBlobs{}, copyTranscoder{}, AnalyzeRequest{VideoURL: "uploads/a.webm", VideoType: "draft"}, "video_type"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			workDir := t.TempDir()
			svc := NewAnalyzeService(logger.Nop(), tc.blobs, tc.tc, &fakeAnalyzer{report: sampleReport}, nil, workDir)
			var rec stream.Recorder
			err := svc.Stream(context.Background(), tc.req, &rec)
			if err == nil {
				t.Fatalf("want error")
			}
			events := rec.Events()
			terminals := 0
			for _, ev := range events {
				if ev.IsTerminal() {
					terminals++
				}
			}
			last, _ := rec.Last()
			if terminals != 1 || last.Type != stream.EventError || !strings.Contains(last.Content, tc.want) {
				t.Fatalf("events: %+v", events)
			}
			assertEmptyDir(t, workDir)
		})
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("work dir not cleaned: %v", names)
	}
}

func TestConvertedBlobName(t *testing.T) {
	if got := convertedBlobName("uploads/a.webm"); got != "uploads/a.mp4" {
		t.Fatalf("webm: %s", got)
	}
	if got := convertedBlobName("uploads/a.mp4"); got != "uploads/a.converted.mp4" {
		t.Fatalf("mp4: %s", got)
	}
}
