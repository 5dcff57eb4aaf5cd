package collection

import (
	"fmt"
	"math"

	"github.com/AnyUserName/imgconv/internal/format"
)

// Settings apply to every conversion issued by a collection.
type Settings struct {
	Format format.Format
	// Quality in [0,1]. Stored for every format, used only by lossy ones.
	Quality float64
}

// DefaultSettings is JPEG at 90%.
func DefaultSettings() Settings {
	return Settings{Format: format.JPEG, Quality: 0.9}
}

// Validate checks the format and quality range.
func (s Settings) Validate() error {
	if !s.Format.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, s.Format)
	}
	if math.IsNaN(s.Quality) || s.Quality < 0 || s.Quality > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidQuality, s.Quality)
	}
	return nil
}
