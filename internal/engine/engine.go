// Package engine decodes source images and re-encodes them into a target
// format. It owns no records; callers hold the returned handles and are
// responsible for releasing them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"sync/atomic"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/hasher"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Phase is a step of a single conversion attempt.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseDecoding Phase = "decoding"
	PhaseDecoded  Phase = "decoded"
	PhaseEncoding Phase = "encoding"
	PhaseEncoded  Phase = "encoded"
	PhaseRefused  Phase = "refused"
	PhaseErrored  Phase = "errored"
)

var errEmptyInput = errors.New("empty input")

// Engine runs decode and convert against a Codec.
type Engine struct {
	codec Codec
	log   *logrus.Entry

	bitmaps   atomic.Int64
	artifacts atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the entry used for phase tracing.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine around codec.
func New(codec Codec, opts ...Option) *Engine {
	e := &Engine{codec: codec}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = logrus.NewEntry(l)
	}
	return e
}

// Live reports the handles created by this engine that are still unreleased.
func (e *Engine) Live() Handles {
	return Handles{Bitmaps: e.bitmaps.Load(), Artifacts: e.artifacts.Load()}
}

func (e *Engine) trace(op string, p Phase) {
	e.log.WithFields(logrus.Fields{"op": op, "phase": p}).Debug("engine phase")
}

// Decode validates the declared MIME type and decodes raw into a Bitmap.
// Failures are *Error values of kind UnsupportedType or CorruptImage.
func (e *Engine) Decode(ctx context.Context, raw []byte, mimeType string) (bmp *Bitmap, err error) {
	const op = "decode"
	e.trace(op, PhaseDecoding)

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		e.trace(op, PhaseErrored)
		return nil, newError(KindUnsupportedType, op, fmt.Errorf("declared type %q", mimeType))
	}
	if len(raw) == 0 {
		e.trace(op, PhaseErrored)
		return nil, newError(KindCorruptImage, op, errEmptyInput)
	}

	defer func() {
		if r := recover(); r != nil {
			e.trace(op, PhaseErrored)
			bmp, err = nil, newError(KindCorruptImage, op, fmt.Errorf("decoder panic: %v", r))
		}
	}()

	img, err := e.codec.Decode(ctx, raw)
	if err != nil {
		e.trace(op, PhaseErrored)
		return nil, newError(KindCorruptImage, op, err)
	}
	if img == nil || img.Bounds().Empty() {
		e.trace(op, PhaseErrored)
		return nil, newError(KindCorruptImage, op, errors.New("decoded image has no pixels"))
	}

	e.trace(op, PhaseDecoded)
	return newBitmap(img, &e.bitmaps), nil
}

// Convert renders bmp onto a surface of the same size and encodes it as f.
// Quality in [0,1] is passed to the codec only for lossy formats. A nil
// result from the codec is reported as EncodeRefused; anything that goes
// wrong while rendering, including a panic, is reported as EncodeError.
func (e *Engine) Convert(ctx context.Context, bmp *Bitmap, f format.Format, quality float64) (art *Artifact, err error) {
	const op = "convert"

	defer func() {
		if r := recover(); r != nil {
			e.trace(op, PhaseErrored)
			art, err = nil, newError(KindEncodeError, op, fmt.Errorf("panic: %v", r))
		}
	}()

	if bmp == nil {
		return nil, newError(KindEncodeError, op, errors.New("nil bitmap"))
	}
	src := bmp.Image()
	if src == nil {
		return nil, newError(KindEncodeError, op, ErrReleased)
	}
	if !f.Valid() {
		e.trace(op, PhaseRefused)
		return nil, newError(KindEncodeRefused, op, fmt.Errorf("format %s", f))
	}

	surface := render(src, bmp.Width(), bmp.Height(), f.NeedsOpaqueBackground())

	q := 1.0
	if f.SupportsQuality() {
		q = clamp01(quality)
	}

	e.trace(op, PhaseEncoding)
	data, err := e.codec.Encode(ctx, surface, f, q)
	switch {
	case err != nil:
		e.trace(op, PhaseErrored)
		return nil, newError(KindEncodeError, op, err)
	case data == nil:
		e.trace(op, PhaseRefused)
		return nil, newError(KindEncodeRefused, op, fmt.Errorf("format %s", f))
	case len(data) == 0:
		e.trace(op, PhaseErrored)
		return nil, newError(KindEncodeError, op, errors.New("codec produced no bytes"))
	}

	e.trace(op, PhaseEncoded)
	e.artifacts.Add(1)
	return &Artifact{
		format: f,
		width:  bmp.Width(),
		height: bmp.Height(),
		size:   len(data),
		hash:   hasher.Sum(data),
		data:   data,
		live:   &e.artifacts,
	}, nil
}

// render draws src onto a w×h surface anchored at the origin, over opaque
// white when the target cannot carry alpha.
func render(src image.Image, w, h int, opaque bool) *image.NRGBA {
	if !opaque {
		return imaging.Clone(src)
	}
	bg := imaging.New(w, h, color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
