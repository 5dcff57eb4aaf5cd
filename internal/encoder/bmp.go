package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/disintegration/imaging"
)

// BMPEncoder writes uncompressed BMP through golang.org/x/image/bmp.
type BMPEncoder struct{}

func (e *BMPEncoder) Format() format.Format { return format.BMP }
func (e *BMPEncoder) Available() bool       { return true }

func (e *BMPEncoder) Encode(ctx context.Context, img image.Image, _ int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	var buf bytes.Buffer
	buf.Grow(b.Dx()*b.Dy()*4 + 138) // pixel data + largest header

	if err := imaging.Encode(&buf, img, imaging.BMP); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
