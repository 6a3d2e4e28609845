package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/httpx"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.FirstString("", "GOOGLE_API_KEY", "GEMINI_API_KEY"),
		BaseURL:    envutil.String("GEMINI_BASE_URL", defaultBaseURL),
		Timeout:    envutil.Seconds("GEMINI_TIMEOUT_SECONDS", 600*time.Second),
		MaxRetries: envutil.Int("GEMINI_MAX_RETRIES", 3),
	}
}

// Client talks to the Gemini REST surface: the Files API and streamGenerateContent.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 600 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		log:        log.With("service", "GeminiClient"),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// retry runs fn until it succeeds, fails permanently, or maxRetries is exhausted.
func (c *Client) retry(ctx context.Context, op string, fn func() (*http.Response, error)) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := fn()
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Gemini request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	ctx = ctxutil.Default(ctx)
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gemini encode request: %w", err)
		}
		payload = b
	}
	var raw []byte
	err := c.retry(ctx, method+" "+path, func() (*http.Response, error) {
		req, err := c.newRequest(ctx, method, path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gemini decode error: %w; raw=%s", err, string(raw))
	}
	return nil
}

// UploadFile sends a local file through the resumable upload protocol and returns the remote handle.
func (c *Client) UploadFile(ctx context.Context, localPath, mimeType string) (*File, error) {
	ctx = ctxutil.Default(ctx)
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat upload source: %w", err)
	}
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	start := time.Now()

	meta, err := json.Marshal(map[string]any{"file": map[string]any{"displayName": filepath.Base(localPath)}})
	if err != nil {
		return nil, err
	}

	var out struct {
		File File `json:"file"`
	}
	status := 0
	err = c.retry(ctx, "files.upload", func() (*http.Response, error) {
		req, err := c.newRequest(ctx, http.MethodPost, "/upload/v1beta/files", bytes.NewReader(meta))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Goog-Upload-Protocol", "resumable")
		req.Header.Set("X-Goog-Upload-Command", "start")
		req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
		req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		status = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		uploadURL := resp.Header.Get("X-Goog-Upload-URL")
		if uploadURL == "" {
			return resp, fmt.Errorf("gemini upload start: missing X-Goog-Upload-URL header")
		}

		f, err := os.Open(localPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		up, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
		if err != nil {
			return nil, err
		}
		up.ContentLength = info.Size()
		up.Header.Set("X-Goog-Upload-Offset", "0")
		up.Header.Set("X-Goog-Upload-Command", "upload, finalize")
		upResp, err := c.httpClient.Do(up)
		if err != nil {
			return nil, err
		}
		defer upResp.Body.Close()
		raw, err = io.ReadAll(upResp.Body)
		status = upResp.StatusCode
		if err != nil {
			return upResp, err
		}
		if upResp.StatusCode < 200 || upResp.StatusCode >= 300 {
			return upResp, &HTTPError{StatusCode: upResp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return upResp, fmt.Errorf("gemini decode upload response: %w", err)
		}
		return upResp, nil
	})
	observability.Current().ObserveLLMRequest("files", "upload", observability.StatusLabel(status), time.Since(start))
	if err != nil {
		return nil, err
	}
	c.log.Info("Uploaded file", "name", out.File.Name, "state", out.File.State, "bytes", info.Size())
	return &out.File, nil
}

func filePath(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if !strings.HasPrefix(name, "files/") {
		name = "files/" + name
	}
	return "/v1beta/" + name
}

func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	var out File
	if err := c.doJSON(ctx, http.MethodGet, filePath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFile(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, filePath(name), nil, nil)
}

// GenerateContent is the unary variant of StreamGenerateContent.
func (c *Client) GenerateContent(ctx context.Context, model string, req GenerateContentRequest) (*GenerateContentResponse, error) {
	start := time.Now()
	var out GenerateContentResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1beta/models/"+model+":generateContent", req, &out)
	observability.Current().ObserveLLMRequest(model, "generateContent", statusFromErr(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamGenerateContent posts req and invokes onChunk for each SSE chunk in arrival order.
// Only the connection attempt is retried; once a chunk was delivered errors are returned as-is.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req GenerateContentRequest, onChunk func(GenerateContentResponse) error) error {
	ctx = ctxutil.Default(ctx)
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gemini encode request: %w", err)
	}
	start := time.Now()
	path := "/v1beta/models/" + model + ":streamGenerateContent?alt=sse"

	var resp *http.Response
	err = c.retry(ctx, "streamGenerateContent", func() (*http.Response, error) {
		hreq, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		hreq.Header.Set("Content-Type", "application/json")
		hreq.Header.Set("Accept", "text/event-stream")
		r, err := c.httpClient.Do(hreq)
		if err != nil {
			return nil, err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(r.Body, 64*1024))
			_ = r.Body.Close()
			return r, &HTTPError{StatusCode: r.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		resp = r
		return r, nil
	})
	if err != nil {
		observability.Current().ObserveLLMRequest(model, "streamGenerateContent", statusFromErr(err), time.Since(start))
		return err
	}
	defer resp.Body.Close()

	err = readSSE(resp.Body, func(data string) error {
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk GenerateContentResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Warn("Skipping undecodable stream chunk", "error", err)
			return nil
		}
		if len(chunk.Error) > 0 {
			return fmt.Errorf("gemini stream error: %s", string(chunk.Error))
		}
		return onChunk(chunk)
	})
	observability.Current().ObserveLLMRequest(model, "streamGenerateContent", statusFromErr(err), time.Since(start))
	return err
}

func statusFromErr(err error) string {
	if err == nil {
		return "200"
	}
	if he, ok := err.(*HTTPError); ok {
		return observability.StatusLabel(he.StatusCode)
	}
	return "error"
}
