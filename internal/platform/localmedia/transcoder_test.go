package localmedia

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

// fakeFFmpeg writes a shell script that copies the -i argument to the last argument,
// or fails when the input contains "broken".
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a POSIX shell")
	}
	script := `#!/bin/sh
in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  last="$a"
done
case "$in" in
  *broken*) echo "Invalid data found when processing input" >&2; exit 1;;
esac
cp "$in" "$last"
`
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestConvert(t *testing.T) {
	tr := NewTranscoder(logger.Nop(), WithFFmpegPath(fakeFFmpeg(t)))
	dir := t.TempDir()
	in := filepath.Join(dir, "take.webm")
	if err := os.WriteFile(in, []byte("webm"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := tr.Convert(context.Background(), in)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != filepath.Join(dir, "take.mp4") {
		t.Fatalf("output path: %s", out)
	}
	b, _ := os.ReadFile(out)
	if string(b) != "webm" {
		t.Fatalf("output content: %q", b)
	}
}

func TestConvertMissingInput(t *testing.T) {
	tr := NewTranscoder(logger.Nop(), WithFFmpegPath(fakeFFmpeg(t)))
	_, err := tr.Convert(context.Background(), filepath.Join(t.TempDir(), "nope.webm"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("want ErrInputNotFound got %v", err)
	}
}

func TestConvertFailureCarriesOutput(t *testing.T) {
	tr := NewTranscoder(logger.Nop(), WithFFmpegPath(fakeFFmpeg(t)))
	in := filepath.Join(t.TempDir(), "broken.webm")
	if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := tr.Convert(context.Background(), in)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("want *ConversionError got %v", err)
	}
	if !strings.Contains(convErr.Output, "Invalid data") {
		t.Fatalf("output not captured: %q", convErr.Output)
	}
}

func TestOutputPath(t *testing.T) {
	cases := map[string]string{
		"/tmp/a.webm":   "/tmp/a.mp4",
		"/tmp/a.b.webm": "/tmp/a.b.mp4",
		"/tmp/noext":    "/tmp/noext.mp4",
		"uploads/x.mp4": "uploads/x.mp4",
	}
	for in, want := range cases {
		if got := OutputPath(in); got != want {
			t.Fatalf("OutputPath(%q): want=%q got=%q", in, want, got)
		}
	}
}
