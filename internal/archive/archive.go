// Package archive bundles converted images into a single zip.
package archive

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/klauspost/compress/zip"
)

// method stores formats that are already compressed and deflates the rest.
func method(mime string) uint16 {
	if format.Parse(mime) == format.BMP {
		return zip.Deflate
	}
	return zip.Store
}

// Writer appends downloads to a zip stream.
type Writer struct {
	zw     *zip.Writer
	closer io.Closer
	now    time.Time
	count  int
	closed bool
}

// NewWriter starts an archive on w. Closing the Writer does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w), now: time.Now()}
}

// Create starts an archive file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Add writes d as an entry named by its FileName, with the content hash
// as the entry comment.
func (w *Writer) Add(d collection.Download) error {
	fw, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     d.FileName,
		Method:   method(d.MIME),
		Modified: w.now,
		Comment:  d.Hash,
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", d.FileName, err)
	}
	if _, err := fw.Write(d.Data); err != nil {
		return fmt.Errorf("archive %s: %w", d.FileName, err)
	}
	w.count++
	return nil
}

// Len returns the number of entries written.
func (w *Writer) Len() int { return w.count }

// Close finishes the zip directory and closes the underlying file, if any.
// Calling Close again is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.zw.Close()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
