// Package worker talks to the external OCR worker, which owns the job
// registry. It submits documents and reads job records back.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/process"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/upload"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const (
	DefaultTimeout = 5 * time.Minute
	APIKeyHeader   = "X-API-Key"

	codeJobNotCompleted = "JOB_NOT_COMPLETED"
	maxReplyBytes       = 64 << 20
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrMalformedReply = errors.New("malformed worker reply")
)

// StatusError is a non-success reply from the worker.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("worker returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("worker returned %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client; its Timeout is kept as is.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse worker url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("worker url must be absolute http(s), got %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "worker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submission is one document forwarded to the worker.
type Submission struct {
	Filename  string
	MediaType string
	Body      io.Reader
	Options   schema.Options
	RequestID string
}

// Submit forwards a document and returns the worker's acceptance record.
// The record's Options are the submitted snapshot unless the worker echoes
// its own.
func (c *Client) Submit(ctx context.Context, s Submission) (*schema.JobRecord, error) {
	opts, err := json.Marshal(toWireOptions(s.Options))
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	fields := map[string]string{"options": string(opts)}
	if s.RequestID != "" {
		fields["requestId"] = s.RequestID
	}
	body, contentType := upload.MultipartBody(fields, upload.FilePart{
		Field:     "file",
		Filename:  s.Filename,
		MediaType: s.MediaType,
		Body:      s.Body,
	})

	rec, err := c.do(ctx, http.MethodPost, "/api/v1/ocr/process", body, contentType)
	if err != nil {
		return nil, err
	}
	if rec.JobID == "" || !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: acceptance without job id or status (%q, %q)", ErrMalformedReply, rec.JobID, rec.Status)
	}
	if rec.Options == nil {
		snapshot := s.Options
		rec.Options = &snapshot
	}
	return rec, nil
}

// Status reads the current record of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	rec, err := c.do(ctx, http.MethodGet, "/api/v1/ocr/status/"+url.PathEscape(jobID), nil, "")
	if err != nil {
		return nil, err
	}
	if err := process.CheckRecord(rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return rec, nil
}

// Result reads a job including its full result. For a job that has not
// completed the current record is returned instead. The status route only
// carries a content summary, so a job that completes between the two reads
// is read from the result route once more, and the summary is never returned
// as the result.
func (c *Client) Result(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	rec, err := c.result(ctx, jobID)
	if !notCompleted(err) {
		return rec, err
	}
	cur, err := c.Status(ctx, jobID)
	if err != nil || cur.Status != schema.StatusCompleted {
		return cur, err
	}
	full, err := c.result(ctx, jobID)
	if err == nil {
		return full, nil
	}
	if !notCompleted(err) {
		return nil, err
	}
	c.logger.Warn("completed job has no readable result", "job_id", jobID)
	cur.Result = nil
	return cur, nil
}

func (c *Client) result(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	rec, err := c.do(ctx, http.MethodGet, "/api/v1/ocr/result/"+url.PathEscape(jobID), nil, "")
	if err != nil {
		return nil, err
	}
	if err := process.CheckRecord(rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return rec, nil
}

func notCompleted(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == codeJobNotCompleted
}

// Ping checks the worker's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if id := reqctx.RequestID(ctx); id != "" {
		req.Header.Set(reqctx.HeaderRequestID, id)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.ReadCloser, contentType string) (*schema.JobRecord, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = body
	}
	req, err := c.newRequest(ctx, method, path, reqBody, contentType)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, err
	}

	reqID := reqctx.RequestID(ctx)
	start := time.Now()
	c.logger.Debug("worker.http.request", "req_id", reqID, "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("worker.http.send_error", "req_id", reqID, "path", path, "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read worker reply: %w", err)
	}
	c.logger.Info("worker.http.response",
		"req_id", reqID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode/100 != 2 || (decodeErr == nil && !env.Success) {
		se := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			se.Code = env.Error.Code
			if env.Error.Message != "" {
				se.Message = env.Error.Message
			}
		}
		if resp.StatusCode == http.StatusNotFound || se.Code == "JOB_NOT_FOUND" {
			return nil, fmt.Errorf("%w: %w", ErrJobNotFound, se)
		}
		return nil, se
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, decodeErr)
	}

	var job wireJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return job.record(), nil
}
