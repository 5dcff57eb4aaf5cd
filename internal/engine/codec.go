package engine

import (
	"bytes"
	"context"
	"image"
	"math"

	"github.com/AnyUserName/imgconv/internal/encoder"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Codec is the raster decode/encode capability the engine orchestrates.
// Encode returns nil bytes and a nil error when it declines the format.
type Codec interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
	Encode(ctx context.Context, img image.Image, f format.Format, quality float64) ([]byte, error)
}

// HostCodec decodes through the image package registry (JPEG, PNG, GIF,
// BMP, TIFF, WebP) and encodes with the encoders in Registry.
type HostCodec struct {
	Registry *encoder.Registry
}

// NewHostCodec returns a codec backed by every built-in encoder.
func NewHostCodec() *HostCodec {
	return &HostCodec{Registry: encoder.NewRegistry()}
}

func (c *HostCodec) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(data))
}

func (c *HostCodec) Encode(ctx context.Context, img image.Image, f format.Format, quality float64) ([]byte, error) {
	enc := c.Registry.Get(f)
	if enc == nil {
		return nil, nil
	}
	return enc.Encode(ctx, img, qualityPercent(quality))
}

// qualityPercent maps [0,1] onto the encoders' 1-100 scale.
func qualityPercent(q float64) int {
	p := int(math.Round(q * 100))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}
