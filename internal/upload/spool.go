package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Spool copies r into a temporary file under dir (the system default when
// empty) so it can be sized and re-read. The returned document removes the
// file on Release.
func Spool(r io.Reader, dir, filename, mediaType string) (Document, error) {
	temp, err := os.CreateTemp(dir, "ocr-upload-*")
	if err != nil {
		return Document{}, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(temp, r)
	if err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return Document{}, fmt.Errorf("copy upload to disk: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return Document{}, fmt.Errorf("close temp file: %w", err)
	}

	path := temp.Name()
	cleanup := func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	open := func() (io.ReadCloser, error) {
		return os.Open(path)
	}
	return NewDocument(filename, mediaType, n, open, cleanup), nil
}
