package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

// The worker speaks snake_case JSON inside its own envelope.

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *wireError      `json:"error"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type wireOptions struct {
	PageRange             *string `json:"page_range,omitempty"`
	MaxOutputTokens       int     `json:"max_output_tokens"`
	IncludeImages         bool    `json:"include_images"`
	IncludeHeadersFooters bool    `json:"include_headers_footers"`
	OutputFormat          string  `json:"output_format"`
}

type wireResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Images   []string       `json:"images"`
}

type wireJob struct {
	JobID     string       `json:"job_id"`
	Status    string       `json:"status"`
	Result    *wireResult  `json:"result"`
	Error     *string      `json:"error"`
	CreatedAt wireTime     `json:"created_at"`
	UpdatedAt wireTime     `json:"updated_at"`
	RequestID *string      `json:"request_id"`
	Options   *wireOptions `json:"options,omitempty"`
}

func toWireOptions(o schema.Options) wireOptions {
	w := wireOptions{
		MaxOutputTokens:       o.MaxOutputTokens,
		IncludeImages:         o.IncludeImages,
		IncludeHeadersFooters: o.IncludeHeadersFooters,
		OutputFormat:          string(o.OutputFormat),
	}
	if o.PageRange != "" {
		pr := o.PageRange
		w.PageRange = &pr
	}
	return w
}

func (w wireOptions) options() *schema.Options {
	o := &schema.Options{
		MaxOutputTokens:       w.MaxOutputTokens,
		IncludeImages:         w.IncludeImages,
		IncludeHeadersFooters: w.IncludeHeadersFooters,
		OutputFormat:          schema.OutputFormat(w.OutputFormat),
	}
	if w.PageRange != nil {
		o.PageRange = *w.PageRange
	}
	return o
}

func (w wireJob) record() *schema.JobRecord {
	rec := &schema.JobRecord{
		JobID:     w.JobID,
		Status:    schema.JobStatus(w.Status),
		CreatedAt: time.Time(w.CreatedAt),
		UpdatedAt: time.Time(w.UpdatedAt),
	}
	if w.Result != nil {
		rec.Result = &schema.Result{Content: w.Result.Content, Metadata: w.Result.Metadata, Images: w.Result.Images}
	}
	if w.Error != nil {
		rec.Error = *w.Error
	}
	if w.RequestID != nil {
		rec.RequestID = *w.RequestID
	}
	if w.Options != nil {
		rec.Options = w.Options.options()
	}
	return rec
}

// wireTime accepts RFC 3339 timestamps as well as the zone-less ISO form
// the worker emits, which is UTC.
type wireTime time.Time

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = wireTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = wireTime{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = wireTime(v.UTC())
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = wireTime(v)
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}
