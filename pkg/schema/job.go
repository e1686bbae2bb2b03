// pkg/schema/job.go
package schema

import "time"

// JobStatus is the lifecycle state of an OCR job as reported by the worker.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
	FormatJSON     OutputFormat = "json"
)

func (f OutputFormat) Valid() bool {
	switch f {
	case FormatMarkdown, FormatHTML, FormatJSON:
		return true
	}
	return false
}

// Options is the validated, fully defaulted option set attached to a job.
type Options struct {
	PageRange             string       `json:"pageRange,omitempty"`
	MaxOutputTokens       int          `json:"maxOutputTokens"`
	IncludeImages         bool         `json:"includeImages"`
	IncludeHeadersFooters bool         `json:"includeHeadersFooters"`
	OutputFormat          OutputFormat `json:"outputFormat"`
}

// Result is the OCR output of a completed job.
type Result struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Images   []string       `json:"images,omitempty"`
}

// JobRecord is the registry view of a job.
type JobRecord struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Options   *Options  `json:"options,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// Accepted is returned to the caller once the worker has taken a job.
type Accepted struct {
	JobID         string    `json:"jobId"`
	Status        JobStatus `json:"status"`
	Options       Options   `json:"options"`
	CorrelationID string    `json:"correlationId"`
	DurationMs    int64     `json:"durationMs"`
}
