// Package format describes the output containers the converter can produce
// and the per-format rules the conversion engine has to honor.
package format

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Format is a supported output container.
type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
	WebP
	GIF
	BMP
)

// DefaultExtension is used for any identifier that maps to no known format.
const DefaultExtension = "jpg"

type policy struct {
	name    string
	mime    string
	ext     string
	quality bool // lossy quality parameter applies
	opaque  bool // no alpha channel, composite over white before encoding
}

var policies = map[Format]policy{
	JPEG: {name: "jpeg", mime: "image/jpeg", ext: "jpg", quality: true, opaque: true},
	PNG:  {name: "png", mime: "image/png", ext: "png"},
	WebP: {name: "webp", mime: "image/webp", ext: "webp", quality: true},
	GIF:  {name: "gif", mime: "image/gif", ext: "gif"},
	BMP:  {name: "bmp", mime: "image/bmp", ext: "bmp", opaque: true},
}

// All lists the supported formats in display order.
var All = []Format{JPEG, PNG, WebP, GIF, BMP}

// aliases maps every accepted spelling to its format.
var aliases = map[string]Format{
	"image/jpeg": JPEG,
	"image/jpg":  JPEG,
	"jpeg":       JPEG,
	"jpg":        JPEG,
	"image/png":  PNG,
	"png":        PNG,
	"image/webp": WebP,
	"webp":       WebP,
	"image/gif":  GIF,
	"gif":        GIF,
	"image/bmp":  BMP,
	"bmp":        BMP,
}

// Parse resolves a MIME type, format name or extension (with or without the
// leading dot). Unrecognized identifiers return Unknown.
func Parse(s string) Format {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	return aliases[s]
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	_, ok := policies[f]
	return ok
}

func (f Format) String() string {
	if p, ok := policies[f]; ok {
		return p.name
	}
	return "unknown"
}

// MIME returns the canonical MIME type, or "" for Unknown.
func (f Format) MIME() string { return policies[f].mime }

// SupportsQuality is true for the lossy formats.
func (f Format) SupportsQuality() bool { return policies[f].quality }

// NeedsOpaqueBackground is true for formats without alpha support. Sources
// must be composited over opaque white before they are encoded.
func (f Format) NeedsOpaqueBackground() bool { return policies[f].opaque }

// Extension returns the output file extension without the dot.
func (f Format) Extension() string {
	if p, ok := policies[f]; ok {
		return p.ext
	}
	return DefaultExtension
}

// ExtensionFor maps a MIME identifier to an output extension. It never fails.
func ExtensionFor(mime string) string {
	return Parse(mime).Extension()
}

var trailingExt = regexp.MustCompile(`\.[^/.]+$`)

// SuggestedFileName strips the source extension and appends the extension
// of f.
func SuggestedFileName(sourceName string, f Format) string {
	base := filepath.Base(sourceName)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = trailingExt.ReplaceAllString(base, "")
	if base == "" {
		base = "image"
	}
	return base + "." + f.Extension()
}

// SuggestTarget picks a sensible target for a single source: JPEG sources
// become PNG, everything else becomes JPEG.
func SuggestTarget(sourceMIME string) Format {
	if Parse(sourceMIME) == JPEG {
		return PNG
	}
	return JPEG
}
