// Package validate checks uploads and OCR options before anything is sent to
// the worker. Every function here is pure.
package validate

import (
	"fmt"
	"mime"
	"slices"
	"strings"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

const (
	DefaultMaxFileSize     int64 = 50 << 20
	MaxOutputTokensCeiling       = 32768
)

// DefaultMediaTypes lists the document types the worker can read. image/jpg
// is not registered but browsers and the worker both use it.
var DefaultMediaTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/webp",
}

// Defaults fills options the caller left out.
type Defaults struct {
	MaxOutputTokens       int
	IncludeImages         bool
	IncludeHeadersFooters bool
	OutputFormat          schema.OutputFormat
}

type Limits struct {
	MaxFileSize       int64
	AllowedMediaTypes []string
	Defaults          Defaults
}

func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:       DefaultMaxFileSize,
		AllowedMediaTypes: slices.Clone(DefaultMediaTypes),
		Defaults: Defaults{
			MaxOutputTokens:       8192,
			IncludeImages:         true,
			IncludeHeadersFooters: false,
			OutputFormat:          schema.FormatMarkdown,
		},
	}
}

// FileMeta is what validation needs to know about an upload.
type FileMeta struct {
	Filename  string
	MediaType string
	Size      int64
}

// File checks size and media type and reports every violated constraint.
func (l Limits) File(m FileMeta) error {
	var v []schema.Violation
	switch {
	case m.Size <= 0:
		v = append(v, schema.Violation{Field: "file", Message: "file is empty"})
	case m.Size > l.MaxFileSize:
		v = append(v, schema.Violation{
			Field:   "file",
			Message: fmt.Sprintf("file is %d bytes, maximum is %d bytes", m.Size, l.MaxFileSize),
		})
	}
	if mt := NormalizeMediaType(m.MediaType); !l.Allowed(mt) {
		if mt == "" {
			mt = "unknown"
		}
		v = append(v, schema.Violation{
			Field:   "mediaType",
			Message: fmt.Sprintf("file type %s is not supported, allowed: %s", mt, strings.Join(l.AllowedMediaTypes, ", ")),
		})
	}
	if len(v) > 0 {
		return apperr.Invalid(apperr.CodeInvalidFile, "invalid file", v)
	}
	return nil
}

func (l Limits) Allowed(mediaType string) bool {
	if mediaType == "" {
		return false
	}
	for _, a := range l.AllowedMediaTypes {
		if NormalizeMediaType(a) == mediaType {
			return true
		}
	}
	return false
}

// NormalizeMediaType lower-cases a Content-Type value and drops parameters.
func NormalizeMediaType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Oversize builds the INVALID_FILE error used when the request body itself
// is larger than the limit and the upload cannot even be parsed.
func (l Limits) Oversize() error {
	return apperr.Invalid(apperr.CodeInvalidFile, "invalid file", []schema.Violation{{
		Field:   "file",
		Message: fmt.Sprintf("file exceeds maximum size of %d bytes", l.MaxFileSize),
	}})
}
