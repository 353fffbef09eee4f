/*
Package config loads quantization presets and output options from TOML or
YAML files.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bodgit/tpq/quantize"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownPreset is returned when a named preset isn't defined.
	ErrUnknownPreset = errors.New("config: unknown preset")
	// ErrUnsupportedFile is returned for config files that are neither
	// TOML nor YAML.
	ErrUnsupportedFile = errors.New("config: unsupported file type")
)

// Preset overrides quantization settings. Zero values and nil pointers
// leave the underlying setting alone.
type Preset struct {
	TileSize         int      `toml:"tile_size" yaml:"tile_size"`
	Palettes         int      `toml:"palettes" yaml:"palettes"`
	ColorsPerPalette int      `toml:"colors_per_palette" yaml:"colors_per_palette"`
	BitsPerChannel   int      `toml:"bits_per_channel" yaml:"bits_per_channel"`
	FractionOfPixels float64  `toml:"fraction_of_pixels" yaml:"fraction_of_pixels"`
	DitherMode       string   `toml:"dither_mode" yaml:"dither_mode"`
	DitherWeight     *float64 `toml:"dither_weight" yaml:"dither_weight"`
	DitherPattern    string   `toml:"dither_pattern" yaml:"dither_pattern"`
	ColorZero        string   `toml:"color_zero" yaml:"color_zero"`
	ColorZeroValue   string   `toml:"color_zero_value" yaml:"color_zero_value"`

	// Dither is the older on/off switch. It only applies when DitherMode
	// is empty and maps true to fast dithering.
	Dither *bool `toml:"dither" yaml:"dither"`
}

// OutputConfig controls what gets written after a run.
type OutputConfig struct {
	Formats   []string `toml:"formats" yaml:"formats"`
	Directory string   `toml:"directory" yaml:"directory"`
	Preview   bool     `toml:"preview" yaml:"preview"`
}

// Config is the top-level configuration.
type Config struct {
	Settings Preset            `toml:"settings" yaml:"settings"`
	Output   OutputConfig      `toml:"output" yaml:"output"`
	Presets  map[string]Preset `toml:"presets" yaml:"presets"`
}

func defaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Formats: []string{"bmp"},
		},
		Presets: map[string]Preset{
			"genesis": {
				TileSize:         8,
				Palettes:         4,
				ColorsPerPalette: 16,
				BitsPerChannel:   3,
			},
			"megasd": {
				TileSize:         8,
				Palettes:         3,
				ColorsPerPalette: 16,
				BitsPerChannel:   3,
			},
			"sms": {
				TileSize:         8,
				Palettes:         2,
				ColorsPerPalette: 16,
				BitsPerChannel:   2,
			},
		},
	}
}

// Load reads the configuration in path on top of the defaults. A missing
// file is not an error. The format is chosen by extension.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	return cfg, nil
}

// PresetNames returns the defined preset names in order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for n := range c.Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve builds settings from the defaults, then the named preset if any,
// then the [settings] table. The result is validated.
func (c *Config) Resolve(preset string) (quantize.Settings, error) {
	s := quantize.DefaultSettings()

	if preset != "" {
		p, ok := c.Presets[preset]
		if !ok {
			return s, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
		}
		if err := p.Apply(&s); err != nil {
			return s, err
		}
	}

	if err := c.Settings.Apply(&s); err != nil {
		return s, err
	}

	return s, s.Validate()
}

// Apply overrides the fields of s that p sets.
func (p Preset) Apply(s *quantize.Settings) error {
	if p.TileSize != 0 {
		s.TileSize = p.TileSize
	}
	if p.Palettes != 0 {
		s.PaletteCount = p.Palettes
	}
	if p.ColorsPerPalette != 0 {
		s.ColorsPerPalette = p.ColorsPerPalette
	}
	if p.BitsPerChannel != 0 {
		s.BitsPerChannel = p.BitsPerChannel
	}
	if p.FractionOfPixels != 0 {
		s.FractionOfPixels = p.FractionOfPixels
	}

	switch {
	case p.DitherMode != "":
		m, err := quantize.ParseDitherMode(p.DitherMode)
		if err != nil {
			return err
		}
		s.DitherMode = m
	case p.Dither != nil:
		s.DitherMode = quantize.DitherOff
		if *p.Dither {
			s.DitherMode = quantize.DitherFast
		}
	}

	if p.DitherWeight != nil {
		s.DitherWeight = *p.DitherWeight
	}
	if p.DitherPattern != "" {
		pat, err := quantize.ParseDitherPattern(p.DitherPattern)
		if err != nil {
			return err
		}
		s.DitherPattern = pat
	}
	if p.ColorZero != "" {
		cz, err := quantize.ParseColorZero(p.ColorZero)
		if err != nil {
			return err
		}
		s.ColorZero = cz
	}
	if p.ColorZeroValue != "" {
		c, err := ParseHexColor(p.ColorZeroValue)
		if err != nil {
			return err
		}
		s.ColorZeroValue = c
	}
	return nil
}

// ParseHexColor parses "#RRGGBB" with or without the leading hash.
func ParseHexColor(hex string) (quantize.RGB, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return quantize.RGB{}, fmt.Errorf("invalid hex color: #%s (expected 6 hex digits)", hex)
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		val, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return quantize.RGB{}, fmt.Errorf("invalid hex color: #%s: %w", hex, err)
		}
		rgb[i] = uint8(val)
	}
	return quantize.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}
