package encoder

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// WebPEncoder encodes images to WebP by shelling out to cwebp.
// This avoids CGO while still producing real lossy WebP with alpha.
// Install: brew install webp / apt install webp
type WebPEncoder struct {
	// Binary overrides the cwebp lookup, mostly for tests.
	Binary string

	once      sync.Once
	available bool
	cwebpPath string
}

func (e *WebPEncoder) Format() format.Format { return format.WebP }

func (e *WebPEncoder) Available() bool {
	e.once.Do(func() {
		name := e.Binary
		if name == "" {
			name = "cwebp"
		}
		path, err := exec.LookPath(name)
		if err == nil {
			e.available = true
			e.cwebpPath = path
		}
	})
	return e.available
}

func (e *WebPEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("cwebp not found in PATH; install with: brew install webp")
	}

	// cwebp reads files: stage the source as PNG.
	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("imgconv_src_%d_*.png", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	if err := png.Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp png: %w", err)
	}

	dstFile, err := os.CreateTemp("", fmt.Sprintf("imgconv_dst_%d_*.webp", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	cmd := exec.CommandContext(ctx, e.cwebpPath,
		"-q", strconv.Itoa(clampQuality(quality)),
		"-m", "6", // compression method (0=fast, 6=best)
		"-mt",
		"-exact", // keep RGB under fully transparent pixels
		"-quiet",
		srcPath,
		"-o", dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}
