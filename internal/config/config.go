// Package config loads CLI settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/preset"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "IMGCONV"
	FileName  = "imgconv"
)

type Config struct {
	Format       string    `mapstructure:"format" yaml:"format,omitempty"`
	Quality      int       `mapstructure:"quality" yaml:"quality,omitempty"` // percent, 0 = preset
	Preset       string    `mapstructure:"preset" yaml:"preset,omitempty"`
	Workers      int       `mapstructure:"workers" yaml:"workers"`
	Out          string    `mapstructure:"out" yaml:"out"`
	Archive      string    `mapstructure:"archive" yaml:"archive,omitempty"`
	Report       string    `mapstructure:"report" yaml:"report,omitempty"`
	ReportFormat string    `mapstructure:"report_format" yaml:"report_format"`
	Log          LogConfig `mapstructure:"log" yaml:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// New returns a viper instance with defaults and IMGCONV_* environment
// lookup. Nested keys map to underscores: log.level → IMGCONV_LOG_LEVEL.
func New() *viper.Viper {
	v := viper.New()
	// Every key needs a default so Unmarshal sees environment overrides.
	v.SetDefault("format", "")
	v.SetDefault("quality", 0)
	v.SetDefault("preset", "")
	v.SetDefault("workers", 0)
	v.SetDefault("out", "./imgconv_out")
	v.SetDefault("archive", "")
	v.SetDefault("report", "")
	v.SetDefault("report_format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file. An explicit path must exist; otherwise
// imgconv.yaml is looked up in the working directory and
// $HOME/.config/imgconv, and a missing file is not an error.
func Load(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Parse decodes and validates the merged configuration.
func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Format != "" && !format.Parse(c.Format).Valid() {
		return fmt.Errorf("config: unsupported format %q", c.Format)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("config: quality %d out of range 1-100", c.Quality)
	}
	if c.Preset != "" && !preset.Known(c.Preset) {
		return fmt.Errorf("config: unknown preset %q (available: %s)", c.Preset, strings.Join(preset.Names(), ", "))
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0")
	}
	switch c.ReportFormat {
	case "json", "yaml":
	default:
		return fmt.Errorf("config: report_format must be json or yaml, got %q", c.ReportFormat)
	}
	return nil
}

// Explicit reports whether a target was chosen by format or preset.
func (c *Config) Explicit() bool {
	return c.Format != "" || c.Preset != ""
}

// Settings resolves the preset, then applies explicit format and quality.
func (c *Config) Settings() collection.Settings {
	p := preset.Get(c.Preset)
	s := collection.Settings{Format: p.Format, Quality: float64(p.Quality) / 100}
	if f := format.Parse(c.Format); f.Valid() {
		s.Format = f
	}
	if c.Quality > 0 {
		s.Quality = float64(c.Quality) / 100
	}
	return s
}

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
