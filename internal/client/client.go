// Package client is the caller side of the gateway's HTTP API, used by
// ocrctl and by anything that needs to poll a job.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/upload"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const (
	DefaultTimeout = 5 * time.Minute
	apiPrefix      = "/api/v1/ocr"
	maxReplyBytes  = 64 << 20
)

type Client struct {
	base   string
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("gateway url must be absolute http(s), got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   u.String(),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Submit uploads doc with the given options JSON. An empty options string
// leaves every option at its default.
func (c *Client) Submit(ctx context.Context, doc upload.Document, options string) (*schema.Accepted, error) {
	f, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc.Filename, err)
	}
	defer f.Close()

	fields := map[string]string{}
	if options != "" {
		fields["options"] = options
	}
	if id := reqctx.RequestID(ctx); id != "" {
		fields["requestId"] = id
	}
	body, contentType := upload.MultipartBody(fields, upload.FilePart{
		Field:     "file",
		Filename:  doc.Filename,
		MediaType: doc.MediaType,
		Body:      f,
	})

	var acc schema.Accepted
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/process", body, contentType, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	var rec schema.JobRecord
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/status/"+url.PathEscape(jobID), nil, "", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Result(ctx context.Context, jobID string) (*schema.JobRecord, error) {
	var rec schema.JobRecord
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/result/"+url.PathEscape(jobID), nil, "", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// do sends one request and decodes the envelope's data into out. An error
// envelope comes back as *apperr.Error.
func (c *Client) do(ctx context.Context, method, path string, body io.ReadCloser, contentType string, out any) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = body
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	reqID := reqctx.RequestID(ctx)
	if reqID != "" {
		req.Header.Set(reqctx.HeaderRequestID, reqID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	c.logger.Debug("gateway.http.response",
		"req_id", reqID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var env schema.RawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return apperr.New(apperr.CodeInternal, fmt.Sprintf("gateway returned %d", resp.StatusCode), err)
		}
		return fmt.Errorf("decode reply: %w", err)
	}
	if !env.Success || resp.StatusCode/100 != 2 {
		return apperr.FromBody(env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
