package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/disintegration/imaging"
)

// GIFEncoder writes a single-frame GIF quantized to a 256 colour palette.
type GIFEncoder struct{}

func (e *GIFEncoder) Format() format.Format { return format.GIF }
func (e *GIFEncoder) Available() bool       { return true }

func (e *GIFEncoder) Encode(ctx context.Context, img image.Image, _ int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.GIF, imaging.GIFNumColors(256)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
