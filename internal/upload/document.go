// internal/upload/document.go
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"
)

// Document is an uploaded file held in temporary storage for the duration
// of one request. The bytes are read lazily through Open; Release frees the
// storage and is safe to call more than once.
type Document struct {
	Filename  string
	MediaType string
	Size      int64

	open    func() (io.ReadCloser, error)
	release func() error
}

func NewDocument(filename, mediaType string, size int64, open func() (io.ReadCloser, error), release func() error) Document {
	return Document{
		Filename:  filename,
		MediaType: mediaType,
		Size:      size,
		open:      open,
		release:   onceErr(release),
	}
}

func (d Document) Open() (io.ReadCloser, error) {
	if d.open == nil {
		return nil, errors.New("document has no content")
	}
	return d.open()
}

func (d Document) Release() error {
	if d.release == nil {
		return nil
	}
	return d.release()
}

// First picks the document to process when a request carried several.
func First(docs []Document) (Document, bool) {
	if len(docs) == 0 {
		return Document{}, false
	}
	return docs[0], true
}

// ReleaseAll releases every document and joins the errors.
func ReleaseAll(docs []Document) error {
	var errs []error
	for _, d := range docs {
		if err := d.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", d.Filename, err))
		}
	}
	return errors.Join(errs...)
}

// FromForm turns the file parts of a parsed multipart form into documents.
// All of them share the form's temporary files, which are removed on the
// first Release.
func FromForm(form *multipart.Form, fields ...string) []Document {
	if form == nil {
		return nil
	}
	release := onceErr(form.RemoveAll)
	var docs []Document
	for _, field := range fields {
		for _, fh := range form.File[field] {
			docs = append(docs, Document{
				Filename:  fh.Filename,
				MediaType: fh.Header.Get("Content-Type"),
				Size:      fh.Size,
				open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
				release: release,
			})
		}
	}
	return docs
}

const maxFilenameLen = 128

// SanitizeFilename lower-cases name, drops every character outside
// [a-z0-9.-] and collapses repeated separators. Leading and trailing
// separators are trimmed so the result never names a hidden file or a
// parent directory. An empty result becomes "document".
func SanitizeFilename(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	var last rune
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '.' || r == '-':
			if r == last {
				continue
			}
		default:
			continue
		}
		b.WriteRune(r)
		last = r
	}
	out := strings.Trim(b.String(), ".-")
	if len(out) > maxFilenameLen {
		ext := filepath.Ext(out)
		if len(ext) >= maxFilenameLen/2 {
			ext = ""
		}
		out = strings.TrimRight(out[:maxFilenameLen-len(ext)], ".-") + ext
	}
	if out == "" {
		return "document"
	}
	return out
}

func onceErr(fn func() error) func() error {
	if fn == nil {
		return nil
	}
	var (
		once sync.Once
		err  error
	)
	return func() error {
		once.Do(func() { err = fn() })
		return err
	}
}
