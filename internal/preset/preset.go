package preset

import (
	"sort"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Preset is a named target format and quality.
type Preset struct {
	Name        string
	Format      format.Format
	Quality     int // encoding quality 1-100, ignored by lossless formats
	Description string
}

// Default is used for unknown names.
const Default = "photo"

// Built-in presets.
var presets = map[string]Preset{
	"web": {
		Name:        "web",
		Format:      format.WebP,
		Quality:     82,
		Description: "small files for the browser",
	},
	"photo": {
		Name:        "photo",
		Format:      format.JPEG,
		Quality:     90,
		Description: "JPEG at 90%",
	},
	"lossless": {
		Name:        "lossless",
		Format:      format.PNG,
		Quality:     100,
		Description: "PNG, keeps transparency",
	},
	"legacy": {
		Name:        "legacy",
		Format:      format.BMP,
		Quality:     100,
		Description: "uncompressed bitmap",
	},
	"anim": {
		Name:        "anim",
		Format:      format.GIF,
		Quality:     100,
		Description: "256-color GIF",
	},
}

// Get returns a preset by name. Falls back to Default if unknown.
func Get(name string) Preset {
	if p, ok := presets[name]; ok {
		return p
	}
	p := presets[Default]
	if name != "" {
		p.Name = name // preserve requested name
	}
	return p
}

// Known reports whether name is a built-in preset.
func Known(name string) bool {
	_, ok := presets[name]
	return ok
}

// Names lists the built-in presets alphabetically.
func Names() []string {
	out := make([]string, 0, len(presets))
	for n := range presets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
