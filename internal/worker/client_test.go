package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/internal/worker"
	"github.com/tendant/simple-ocr-gateway/internal/worker/workertest"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, url, key string) *worker.Client {
	t.Helper()
	c, err := worker.NewClient(worker.Config{BaseURL: url, APIKey: key, Timeout: 5 * time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8001", "ftp://worker"} {
		if _, err := worker.NewClient(worker.Config{BaseURL: u}, nil); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}

func TestSubmitSendsMultipartWithKey(t *testing.T) {
	fake := workertest.New()
	fake.APIKey = "s3cret"
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL+"/", "s3cret")

	opts := schema.Options{PageRange: "1-5,7", MaxOutputTokens: 1024, IncludeImages: true, OutputFormat: schema.FormatJSON}
	rec, err := c.Submit(context.Background(), worker.Submission{
		Filename:  "scan.pdf",
		MediaType: "application/pdf",
		Body:      strings.NewReader("%PDF-1.4"),
		Options:   opts,
		RequestID: "corr-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.JobID == "" || rec.Status != schema.StatusPending {
		t.Fatalf("unexpected acceptance: %+v", rec)
	}
	if rec.CreatedAt.IsZero() || rec.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at not parsed as UTC: %v", rec.CreatedAt)
	}
	if rec.Options == nil || *rec.Options != opts {
		t.Fatalf("options snapshot = %+v", rec.Options)
	}

	uploads := fake.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d", len(uploads))
	}
	up := uploads[0]
	if up.Filename != "scan.pdf" || up.ContentType != "application/pdf" || string(up.Body) != "%PDF-1.4" {
		t.Fatalf("unexpected upload: %+v", up)
	}
	if up.RequestID != "corr-1" || up.APIKey != "s3cret" {
		t.Fatalf("request id / key not forwarded: %+v", up)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(up.Options), &sent); err != nil {
		t.Fatalf("options not JSON: %v", err)
	}
	if sent["page_range"] != "1-5,7" || sent["output_format"] != "json" || sent["max_output_tokens"] != float64(1024) {
		t.Fatalf("unexpected wire options: %v", sent)
	}
}

func TestSubmitWrongKeyIsStatusError(t *testing.T) {
	fake := workertest.New()
	fake.APIKey = "right"
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL, "wrong")

	_, err := c.Submit(context.Background(), worker.Submission{Filename: "a.png", Body: strings.NewReader("x")})
	var se *worker.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}

func TestSubmitMalformedAcceptance(t *testing.T) {
	fake := workertest.New()
	fake.MalformedAcceptance()
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL, "")

	_, err := c.Submit(context.Background(), worker.Submission{Filename: "a.png", Body: strings.NewReader("x")})
	if !errors.Is(err, worker.ErrMalformedReply) {
		t.Fatalf("expected malformed reply, got %v", err)
	}
}

func TestStatusAndResult(t *testing.T) {
	fake := workertest.New()
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL, "")

	now := time.Now().UTC()
	fake.Put(schema.JobRecord{JobID: "job-1", Status: schema.StatusProcessing, CreatedAt: now, UpdatedAt: now})

	rec, err := c.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Status != schema.StatusProcessing {
		t.Fatalf("status = %s", rec.Status)
	}

	// Result before completion falls back to the current record.
	rec, err = c.Result(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if rec.Status != schema.StatusProcessing || rec.Result != nil {
		t.Fatalf("unexpected early result: %+v", rec)
	}

	if err := fake.Advance("job-1", workertest.Step{Status: schema.StatusCompleted, Result: &schema.Result{Content: "# Title", Images: []string{"img-1"}}}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	rec, err = c.Result(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if rec.Result == nil || rec.Result.Content != "# Title" || len(rec.Result.Images) != 1 {
		t.Fatalf("unexpected result: %+v", rec.Result)
	}
	if !rec.UpdatedAt.After(rec.CreatedAt) && !rec.UpdatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("updatedAt before createdAt: %+v", rec)
	}
}

func TestResultJobCompletingBetweenReads(t *testing.T) {
	fake := workertest.New()
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL, "")

	now := time.Now().UTC()
	fake.Put(schema.JobRecord{JobID: "job-2", Status: schema.StatusProcessing, CreatedAt: now, UpdatedAt: now},
		workertest.Step{Status: schema.StatusCompleted, Result: &schema.Result{Content: "# Full text"}})

	rec, err := c.Result(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if rec.Status != schema.StatusCompleted || rec.Result == nil || rec.Result.Content != "# Full text" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if got := fake.ResultCalls("job-2"); got != 2 {
		t.Fatalf("result calls = %d, want 2", got)
	}
}

func TestResultNeverReturnsContentSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/result/") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"success":false,"error":{"code":"JOB_NOT_COMPLETED","message":"Job is not completed"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"job_id":"j","status":"completed","result":{"content":"[11 characters]"},"created_at":"2024-01-01T00:00:00","updated_at":"2024-01-01T00:00:01"}}`)
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, "")

	rec, err := c.Result(context.Background(), "j")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if rec.Status != schema.StatusCompleted || rec.Result != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	srv := workertest.NewServer(t, workertest.New())
	c := newClient(t, srv.URL, "")

	_, err := c.Status(context.Background(), "missing")
	if !errors.Is(err, worker.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusRejectsInconsistentRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{"job_id":"j","status":"processing","result":{"content":"x"},"created_at":"2024-01-01T00:00:00"}}`)
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, "")

	if _, err := c.Status(context.Background(), "j"); !errors.Is(err, worker.ErrMalformedReply) {
		t.Fatalf("expected malformed reply, got %v", err)
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(reqctx.HeaderRequestID)
		_, _ = io.WriteString(w, `{"success":true,"data":{"job_id":"j","status":"pending","created_at":"2024-01-01T00:00:00.123456","updated_at":null}}`)
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, "")

	ctx := reqctx.WithRequestID(context.Background(), "req-42")
	rec, err := c.Status(ctx, "j")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got != "req-42" {
		t.Fatalf("X-Request-ID = %q", got)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC)
	if !rec.CreatedAt.Equal(want) {
		t.Fatalf("created_at = %v", rec.CreatedAt)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newClient(t, url, "")

	_, err := c.Status(context.Background(), "job")
	if err == nil || errors.Is(err, worker.ErrJobNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	fake := workertest.New()
	srv := workertest.NewServer(t, fake)
	c := newClient(t, srv.URL, "")

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	fake.Down()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure")
	}
}
