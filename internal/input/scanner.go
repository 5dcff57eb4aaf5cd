// Package input discovers image files on disk and loads them as collection
// inputs, sniffing each file's MIME type from its content.
package input

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/gabriel-vasile/mimetype"
)

// Source represents a discovered file.
type Source struct {
	// Path is the path as found on disk.
	Path string
	// RelPath is the path relative to the argument it was found under.
	RelPath string
	// Size is the file size in bytes.
	Size int64
}

// imageExtensions lists recognized image file extensions when walking
// directories. Files named explicitly are always taken.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// Scan resolves every argument into sources. Directories are walked
// recursively, skipping hidden directories and non-image extensions.
func Scan(paths ...string) ([]Source, error) {
	var sources []Source
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			sources = append(sources, Source{
				Path:    root,
				RelPath: filepath.Base(root),
				Size:    info.Size(),
			})
			continue
		}

		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				// Skip hidden directories.
				if path != root && strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			sources = append(sources, Source{
				Path:    path,
				RelPath: filepath.ToSlash(rel),
				Size:    info.Size(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return sources, nil
}

// Load reads a source and sniffs its MIME type.
func Load(s Source) (collection.File, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return collection.File{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return collection.File{
		Name: filepath.Base(s.Path),
		Size: int64(len(data)),
		MIME: DetectMIME(data),
		Data: data,
	}, nil
}

// DetectMIME returns the content type of data without parameters,
// e.g. "image/png" or "text/plain".
func DetectMIME(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(m)
}
