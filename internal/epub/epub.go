// Package epub reads packaged documents: a zip container holding an XML
// package manifest, a table of contents in one of two dialects, and XHTML
// chapters. It resolves the spine into an ordered chapter list and hands
// chapter markup to Flow for rendering.
package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
)

// Container-level errors.
var (
	ErrNotAnArchive = errors.New("epub: not a readable zip archive")
	ErrEntryMissing = errors.New("epub: entry not found in archive")
)

// Container is an open document archive. Entries are decompressed on
// demand; nothing is cached between reads.
type Container struct {
	zr *zip.ReadCloser
}

// Open opens the archive at path.
func Open(path string) (*Container, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnArchive, err)
	}
	return &Container{zr: zr}, nil
}

// ReadEntry returns the decompressed contents of the named archive entry.
// Names are matched exactly, including directory components.
func (c *Container) ReadEntry(name string) (string, error) {
	for _, f := range c.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open entry %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("read entry %s: %w", name, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: %s", ErrEntryMissing, name)
}

// Close releases the underlying archive.
func (c *Container) Close() error {
	return c.zr.Close()
}
