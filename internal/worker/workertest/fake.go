// Package workertest provides an in-process OCR worker that speaks the real
// worker's HTTP protocol, for tests of the packages that call it.
package workertest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-ocr-gateway/internal/process"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

// Step is applied to a job on a status read.
type Step struct {
	Status schema.JobStatus
	Result *schema.Result
	Error  string
}

// Upload records what a submission carried.
type Upload struct {
	JobID       string
	Filename    string
	ContentType string
	Body        []byte
	Options     string
	RequestID   string
	APIKey      string
}

type Worker struct {
	// APIKey, when set, is required in X-API-Key.
	APIKey string
	// Script is applied to every newly submitted job.
	Script []Step

	mu            sync.Mutex
	jobs          map[string]*schema.JobRecord
	scripts       map[string][]Step
	uploads       []Upload
	statusCalls   map[string]int
	resultCalls   map[string]int
	submitFailure int
	statusFailure int
	malformed     bool
	down          bool
}

func New() *Worker {
	return &Worker{
		jobs:        map[string]*schema.JobRecord{},
		scripts:     map[string][]Step{},
		statusCalls: map[string]int{},
		resultCalls: map[string]int{},
	}
}

// NewServer starts w behind an httptest server closed at test cleanup.
func NewServer(t testing.TB, w *Worker) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(w.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func (w *Worker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", w.health)
	mux.HandleFunc("POST /api/v1/ocr/process", w.authorized(w.process))
	mux.HandleFunc("GET /api/v1/ocr/status/{id}", w.authorized(w.status))
	mux.HandleFunc("GET /api/v1/ocr/result/{id}", w.authorized(w.result))
	return mux
}

// FailSubmits makes every submission answer with code.
func (w *Worker) FailSubmits(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitFailure = code
}

// FailStatus makes every status and result read answer with code.
func (w *Worker) FailStatus(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statusFailure = code
}

// MalformedAcceptance makes submissions answer 200 without a job id.
func (w *Worker) MalformedAcceptance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.malformed = true
}

// Down makes the health endpoint fail.
func (w *Worker) Down() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.down = true
}

// Put stores a job directly, bypassing submission.
func (w *Worker) Put(rec schema.JobRecord, script ...Step) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs[rec.JobID] = &rec
	w.scripts[rec.JobID] = script
}

// Advance moves a job forward immediately.
func (w *Worker) Advance(jobID string, step Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.jobs[jobID]
	if !ok {
		return errors.New("unknown job")
	}
	return apply(rec, step, time.Now().UTC())
}

func (w *Worker) Uploads() []Upload {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Upload, len(w.uploads))
	copy(out, w.uploads)
	return out
}

func (w *Worker) StatusCalls(jobID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statusCalls[jobID]
}

func (w *Worker) ResultCalls(jobID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resultCalls[jobID]
}

func (w *Worker) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if w.APIKey != "" && r.Header.Get("X-API-Key") != w.APIKey {
			writeError(rw, http.StatusUnauthorized, "", "Invalid API key")
			return
		}
		next(rw, r)
	}
}

func (w *Worker) health(rw http.ResponseWriter, _ *http.Request) {
	w.mu.Lock()
	down := w.down
	w.mu.Unlock()
	if down {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": "healthy", "services": map[string]string{"api": "healthy"}})
}

func (w *Worker) process(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(rw, http.StatusBadRequest, "INVALID_FILE", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(rw, http.StatusBadRequest, "INVALID_FILE", "file is required")
		return
	}
	body, _ := io.ReadAll(file)
	file.Close()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitFailure != 0 {
		writeError(rw, w.submitFailure, "PROCESSING_ERROR", "worker unavailable")
		return
	}

	id := uuid.NewString()
	w.uploads = append(w.uploads, Upload{
		JobID:       id,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        body,
		Options:     r.FormValue("options"),
		RequestID:   r.FormValue("requestId"),
		APIKey:      r.Header.Get("X-API-Key"),
	})

	if w.malformed {
		writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"status": "pending"}})
		return
	}

	var opts wireOptions
	_ = json.Unmarshal([]byte(r.FormValue("options")), &opts)
	rec := process.NewRecord(id, r.FormValue("requestId"), opts.options(), time.Now().UTC())
	w.jobs[id] = rec
	w.scripts[id] = append([]Step(nil), w.Script...)

	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": toWire(rec)})
}

func (w *Worker) status(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statusCalls[id]++

	if w.statusFailure != 0 {
		writeError(rw, w.statusFailure, "STATUS_CHECK_ERROR", "registry unavailable")
		return
	}
	rec, ok := w.jobs[id]
	if !ok {
		writeError(rw, http.StatusNotFound, "JOB_NOT_FOUND", "Job "+id+" not found")
		return
	}
	if script := w.scripts[id]; len(script) > 0 {
		if err := apply(rec, script[0], time.Now().UTC()); err != nil {
			writeError(rw, http.StatusInternalServerError, "STATUS_CHECK_ERROR", err.Error())
			return
		}
		w.scripts[id] = script[1:]
	}
	// The status route only reports how much content there is.
	view := *rec
	if rec.Result != nil {
		r := *rec.Result
		r.Content = fmt.Sprintf("[%d characters]", len(r.Content))
		view.Result = &r
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": toWire(&view)})
}

func (w *Worker) result(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resultCalls[id]++

	if w.statusFailure != 0 {
		writeError(rw, w.statusFailure, "RESULT_FETCH_ERROR", "registry unavailable")
		return
	}
	rec, ok := w.jobs[id]
	if !ok {
		writeError(rw, http.StatusNotFound, "JOB_NOT_FOUND", "Job "+id+" not found")
		return
	}
	if rec.Status != schema.StatusCompleted {
		writeError(rw, http.StatusBadRequest, "JOB_NOT_COMPLETED", "Job is not completed (status: "+string(rec.Status)+")")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "data": toWire(rec)})
}

func apply(rec *schema.JobRecord, step Step, now time.Time) error {
	switch step.Status {
	case schema.StatusProcessing:
		return process.MarkProcessing(rec, now)
	case schema.StatusCompleted:
		res := schema.Result{}
		if step.Result != nil {
			res = *step.Result
		}
		return process.MarkCompleted(rec, res, now)
	case schema.StatusFailed:
		var cause error
		if step.Error != "" {
			cause = errors.New(step.Error)
		}
		return process.MarkFailed(rec, cause, now)
	}
	return nil
}

type wireOptions struct {
	PageRange             *string `json:"page_range"`
	MaxOutputTokens       int     `json:"max_output_tokens"`
	IncludeImages         bool    `json:"include_images"`
	IncludeHeadersFooters bool    `json:"include_headers_footers"`
	OutputFormat          string  `json:"output_format"`
}

func (o wireOptions) options() *schema.Options {
	opts := &schema.Options{
		MaxOutputTokens:       o.MaxOutputTokens,
		IncludeImages:         o.IncludeImages,
		IncludeHeadersFooters: o.IncludeHeadersFooters,
		OutputFormat:          schema.OutputFormat(o.OutputFormat),
	}
	if o.PageRange != nil {
		opts.PageRange = *o.PageRange
	}
	return opts
}

// naive mirrors the worker's zone-less UTC timestamps.
const naive = "2006-01-02T15:04:05.000000"

// toWire renders a record the way the worker does. Worker records carry no
// options.
func toWire(rec *schema.JobRecord) map[string]any {
	m := map[string]any{
		"job_id":     rec.JobID,
		"status":     string(rec.Status),
		"result":     nil,
		"error":      nil,
		"created_at": rec.CreatedAt.UTC().Format(naive),
		"updated_at": rec.UpdatedAt.UTC().Format(naive),
		"request_id": nil,
	}
	if rec.Result != nil {
		m["result"] = map[string]any{
			"content":  rec.Result.Content,
			"metadata": rec.Result.Metadata,
			"images":   rec.Result.Images,
		}
	}
	if rec.Error != "" {
		m["error"] = rec.Error
	}
	if rec.RequestID != "" {
		m["request_id"] = rec.RequestID
	}
	return m
}

func writeError(rw http.ResponseWriter, code int, errCode, msg string) {
	body := map[string]any{"message": msg}
	if errCode != "" {
		body["code"] = errCode
	}
	writeJSON(rw, code, map[string]any{
		"success":   false,
		"error":     body,
		"timestamp": time.Now().UTC().Format(naive),
	})
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	if m, ok := v.(map[string]any); ok {
		if _, has := m["timestamp"]; !has {
			m["timestamp"] = time.Now().UTC().Format(naive)
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}
