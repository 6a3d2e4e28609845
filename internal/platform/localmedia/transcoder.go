package localmedia

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

var ErrInputNotFound = errors.New("input file not found")

// ConversionError carries the combined ffmpeg output of a failed run.
type ConversionError struct {
	Input  string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("ffmpeg convert %s failed: %v", filepath.Base(e.Input), e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Transcoder shells out to ffmpeg to turn browser recordings into H.264/AAC mp4.
// Callers run it from request handlers or the conversion queue; it does not manage concurrency.
type Transcoder struct {
	log        *logger.Logger
	ffmpegPath string
	timeout    time.Duration
}

type TranscoderOption func(*Transcoder)

func WithFFmpegPath(path string) TranscoderOption {
	return func(t *Transcoder) {
		if strings.TrimSpace(path) != "" {
			t.ffmpegPath = path
		}
	}
}

func WithTimeout(d time.Duration) TranscoderOption {
	return func(t *Transcoder) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func NewTranscoder(log *logger.Logger, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		log:        log.With("service", "Transcoder"),
		ffmpegPath: "ffmpeg",
		timeout:    10 * time.Minute,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transcoder) AssertReady() error {
	if _, err := exec.LookPath(t.ffmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", t.ffmpegPath, err)
	}
	return nil
}

// Convert writes <input stem>.mp4 next to input, overwriting any existing file.
func (t *Transcoder) Convert(ctx context.Context, inputPath string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}
	outPath := OutputPath(inputPath)
	return outPath, t.ConvertTo(ctx, inputPath, outPath)
}

func (t *Transcoder) ConvertTo(ctx context.Context, inputPath, outPath string) error {
	ctx = ctxutil.Default(ctx)
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-y",
		outPath,
	}
	start := time.Now()
	t.log.Debug("Running conversion", "ffmpeg", t.ffmpegPath, "input", inputPath, "output", outPath)

	out, err := exec.CommandContext(ctx, t.ffmpegPath, args...).CombinedOutput()
	if err != nil {
		t.log.Warn("Conversion failed", "input", inputPath, "error", err)
		return &ConversionError{Input: inputPath, Output: string(out), Err: err}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &ConversionError{Input: inputPath, Output: string(out), Err: fmt.Errorf("output missing at %s", outPath)}
	}
	t.log.Info("Conversion complete", "input", filepath.Base(inputPath), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// OutputPath swaps the extension of p for .mp4.
func OutputPath(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".mp4"
}

// RemoveAll deletes the given paths, ignoring blanks and missing files.
func RemoveAll(paths ...string) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		_ = os.Remove(p)
	}
}
