package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/disintegration/imaging"
)

// JPEGEncoder encodes images to baseline JPEG.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() format.Format { return format.JPEG }
func (e *JPEGEncoder) Available() bool       { return true }

func (e *JPEGEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(256 * 1024) // typical photo

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
