package encoder

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/disintegration/imaging"
)

// PNGEncoder encodes images to PNG, keeping the alpha channel.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() format.Format { return format.PNG }
func (e *PNGEncoder) Available() bool       { return true }

func (e *PNGEncoder) Encode(ctx context.Context, img image.Image, _ int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(512 * 1024)

	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
