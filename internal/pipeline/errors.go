package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
)

var (
	ErrUploadTimeout  = errors.New("file processing timed out")
	errMissingVerdict = errors.New("result has no is_fixed field")
)

// UploadTimeoutError is returned when an uploaded file never became ACTIVE.
type UploadTimeoutError struct {
	After time.Duration
}

func (e *UploadTimeoutError) Error() string {
	return fmt.Sprintf("File processing timed out after %ds", int(e.After.Seconds()))
}

func (e *UploadTimeoutError) Is(target error) bool { return target == ErrUploadTimeout }

// UploadError wraps a failed upload or a file the backend rejected.
type UploadError struct {
	File  string
	State gemini.FileState
	Err   error
}

func (e *UploadError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("upload video: %v", e.Err)
	case e.State != "":
		return fmt.Sprintf("upload video: file %s entered state %s", e.File, e.State)
	default:
		return "upload video failed"
	}
}

func (e *UploadError) Unwrap() error { return e.Err }
