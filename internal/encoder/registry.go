package encoder

import (
	"fmt"
	"strings"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Registry holds the available encoder for each format.
type Registry struct {
	encoders map[format.Format]Encoder
}

// NewRegistry creates a registry with every built-in encoder, probing each
// for availability.
func NewRegistry() *Registry {
	return NewRegistryWith(
		&JPEGEncoder{},
		&PNGEncoder{},
		&WebPEncoder{},
		&GIFEncoder{},
		&BMPEncoder{},
	)
}

// NewRegistryWith registers only the given encoders. Unavailable encoders
// are dropped; a later encoder for the same format replaces an earlier one.
func NewRegistryWith(encs ...Encoder) *Registry {
	r := &Registry{
		encoders: make(map[format.Format]Encoder, len(encs)),
	}
	for _, enc := range encs {
		if enc.Available() {
			r.encoders[enc.Format()] = enc
		}
	}
	return r
}

// Get returns the encoder for f, or nil if none is available.
func (r *Registry) Get(f format.Format) Encoder {
	return r.encoders[f]
}

// Available returns the formats that have an encoder, in display order.
func (r *Registry) Available() []format.Format {
	var result []format.Format
	for _, f := range format.All {
		if _, ok := r.encoders[f]; ok {
			result = append(result, f)
		}
	}
	return result
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	names := make([]string, len(avail))
	for i, f := range avail {
		names[i] = f.String()
	}
	return fmt.Sprintf("encoders: %s", strings.Join(names, ", "))
}
