package upload

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// Generic reports whether a declared media type says nothing about the
// content.
func Generic(mediaType string) bool {
	mt := strings.TrimSpace(mediaType)
	if mt == "" {
		return true
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	return strings.EqualFold(mt, octetStream)
}

// ResolveMediaType replaces a missing or generic declared media type with
// one detected from the document's leading bytes. A specific declaration is
// left untouched.
func ResolveMediaType(d *Document) error {
	if !Generic(d.MediaType) {
		return nil
	}
	r, err := d.Open()
	if err != nil {
		return fmt.Errorf("open for mime detect: %w", err)
	}
	defer r.Close()

	m, err := mimetype.DetectReader(r)
	if err != nil {
		return fmt.Errorf("detect mime: %w", err)
	}
	mt := m.String()
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	d.MediaType = mt
	return nil
}
