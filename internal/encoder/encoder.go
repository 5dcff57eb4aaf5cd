// Package encoder holds the per-format encoders behind the host codec.
package encoder

import (
	"context"
	"image"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Encoder encodes an image to a specific format.
type Encoder interface {
	// Format returns the output format this encoder produces.
	Format() format.Format

	// Encode converts the image to bytes at the given quality (1-100).
	// Encoders for lossless formats ignore quality.
	Encode(ctx context.Context, img image.Image, quality int) ([]byte, error)

	// Available returns true if the encoder is ready to use.
	// External encoders (cwebp) may not be installed.
	Available() bool
}

// DefaultQuality is used when a caller passes a quality outside 1-100.
const DefaultQuality = 90

func clampQuality(q int) int {
	if q <= 0 || q > 100 {
		return DefaultQuality
	}
	return q
}
