package engine

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Handles counts codec handles that have been created but not released.
type Handles struct {
	Bitmaps   int64
	Artifacts int64
}

// Bitmap is a decoded source image. It is owned by exactly one record and
// must be released when the record goes away.
type Bitmap struct {
	width, height int

	mu   sync.RWMutex
	img  image.Image
	live *atomic.Int64
}

func newBitmap(img image.Image, live *atomic.Int64) *Bitmap {
	b := img.Bounds()
	live.Add(1)
	return &Bitmap{width: b.Dx(), height: b.Dy(), img: img, live: live}
}

func (b *Bitmap) Width() int  { return b.width }
func (b *Bitmap) Height() int { return b.height }

// Image returns the pixels, or nil once the bitmap has been released.
func (b *Bitmap) Image() image.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.img
}

// Released reports whether Release has been called.
func (b *Bitmap) Released() bool { return b.Image() == nil }

// Release drops the pixel buffer. It is safe to call more than once.
func (b *Bitmap) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img == nil {
		return
	}
	b.img = nil
	b.live.Add(-1)
}

// Artifact is an encoded output buffer plus its metadata.
type Artifact struct {
	format        format.Format
	width, height int
	size          int
	hash          string

	mu   sync.RWMutex
	data []byte
	live *atomic.Int64
}

func (a *Artifact) Format() format.Format { return a.format }
func (a *Artifact) MIME() string          { return a.format.MIME() }
func (a *Artifact) Width() int            { return a.width }
func (a *Artifact) Height() int           { return a.height }

// Size is the encoded byte size. It survives Release for reporting.
func (a *Artifact) Size() int { return a.size }

// Hash is the xxHash64 of the encoded bytes, 16 hex chars.
func (a *Artifact) Hash() string { return a.hash }

// Bytes returns the encoded buffer, or nil once released.
func (a *Artifact) Bytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data
}

func (a *Artifact) Released() bool { return a.Bytes() == nil }

// Release drops the encoded buffer. It is safe to call more than once.
func (a *Artifact) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data == nil {
		return
	}
	a.data = nil
	a.live.Add(-1)
}
