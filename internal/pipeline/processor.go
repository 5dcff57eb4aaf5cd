package pipeline

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/AnyUserName/imgconv/internal/hasher"
)

// outputs tracks file names already written during a run so later windows
// never overwrite earlier results.
type outputs struct {
	dir   string
	taken map[string]bool
}

func newOutputs(dir string) *outputs {
	return &outputs{dir: dir, taken: map[string]bool{}}
}

// claim returns name, or name.<hash>.ext if name was used before.
func (o *outputs) claim(name, hash string) string {
	if o.taken[name] {
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext) + "." + hasher.Short(hash)
		name = base + ext
		for i := 1; o.taken[name]; i++ {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
	}
	o.taken[name] = true
	return name
}

func (o *outputs) write(d collection.Download) error {
	p := filepath.Join(o.dir, d.FileName)
	if err := os.WriteFile(p, d.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.FileName, err)
	}
	return nil
}
