// Package config loads benchmark scenarios and runtime options.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

// Patterns accepted by Scenario.Pattern.
var Patterns = []string{"ramp", "ones", "max", "random", "nonzero", "zeros"}

// Config is the top-level benchmark configuration.
type Config struct {
	// Name labels the run in reports
	Name string `yaml:"name" json:"name"`

	// Kernel overrides backend detection: auto, scalar, swar or highway
	Kernel string `yaml:"kernel,omitempty" json:"kernel,omitempty"`

	// Epsilon is the tolerance for average comparisons; 0 means float64
	// machine epsilon
	Epsilon float64 `yaml:"epsilon,omitempty" json:"epsilon,omitempty"`

	// Trace writes every check to trace.jsonl next to the report
	Trace bool `yaml:"trace,omitempty" json:"trace,omitempty"`

	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// Scenario is one engine run over one dataset.
type Scenario struct {
	Name string `yaml:"name" json:"name"`

	// Engine is a pixelsum.Kind name
	Engine string `yaml:"engine" json:"engine"`

	// Pattern generates the data; Image loads it from a PNG/JPEG/GIF file
	// instead (converted to 8-bit gray)
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Image   string `yaml:"image,omitempty" json:"image,omitempty"`

	Width  int   `yaml:"width,omitempty" json:"width,omitempty"`
	Height int   `yaml:"height,omitempty" json:"height,omitempty"`
	Seed   int64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// RandomQueries adds seeded random rectangles to the standard shapes
	RandomQueries int `yaml:"randomQueries,omitempty" json:"randomQueries,omitempty"`
}

// Default reproduces the classic case list: the vectorized scanner on a
// ramp, then the SAT engine on ones, an odd-sized buffer, a ramp without
// zeros, all zeros and all 255s.
func Default() *Config {
	const side = pixelsum.MaxSide
	return &Config{
		Name: "default",
		Scenarios: []Scenario{
			{Name: "Optimized naive", Engine: string(pixelsum.KindNaiveVector), Pattern: "ramp", Width: side, Height: side},
			{Name: "SAT", Engine: string(pixelsum.KindIntegral), Pattern: "ones", Width: side, Height: side},
			{Name: "SAT", Engine: string(pixelsum.KindIntegral), Pattern: "ones", Width: 359, Height: 257},
			{Name: "SAT without zero", Engine: string(pixelsum.KindIntegral), Pattern: "nonzero", Width: side, Height: side},
			{Name: "SAT only zero", Engine: string(pixelsum.KindIntegral), Pattern: "zeros", Width: side, Height: side},
			{Name: "SAT only maximum", Engine: string(pixelsum.KindIntegral), Pattern: "max", Width: side, Height: side},
		},
	}
}

// Load reads a configuration file. The format follows the extension:
// .json is JSON, anything else is YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}

	cfg, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses and validates a configuration.
func Decode(r io.Reader, format string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(format) {
	case "json":
		decoder := json.NewDecoder(r)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("error parsing JSON: %w", err)
		}
	case "yaml", "yml":
		decoder := yaml.NewDecoder(r)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("error parsing YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", format)
	}

	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := kernel.ParseBackend(c.Kernel); err != nil {
		return &ValidationError{Field: "kernel", Reason: err.Error()}
	}
	if c.Epsilon < 0 {
		return &ValidationError{Field: "epsilon", Reason: "cannot be negative"}
	}
	if len(c.Scenarios) == 0 {
		return &ValidationError{Field: "scenarios", Reason: "at least one scenario is required"}
	}
	for i := range c.Scenarios {
		if err := c.Scenarios[i].Validate(); err != nil {
			if verr, ok := err.(*ValidationError); ok {
				verr.Field = fmt.Sprintf("scenarios[%d].%s", i, verr.Field)
			}
			return err
		}
	}
	return nil
}

// Validate checks one scenario. Image scenarios take their size from the
// file, so Width and Height are only checked for patterns.
func (s *Scenario) Validate() error {
	if _, err := pixelsum.ParseKind(s.Engine); err != nil {
		return &ValidationError{Field: "engine", Reason: err.Error()}
	}

	switch {
	case s.Image != "" && s.Pattern != "":
		return &ValidationError{Field: "pattern", Reason: "pattern and image are mutually exclusive"}
	case s.Image != "":
		return nil
	case !isPattern(s.Pattern):
		return &ValidationError{Field: "pattern", Reason: fmt.Sprintf("unknown pattern %q (want one of %s)", s.Pattern, strings.Join(Patterns, ", "))}
	}

	if err := pixelsum.Validate(s.Width*s.Height, s.Width, s.Height); err != nil {
		return &ValidationError{Field: "width/height", Reason: err.Error()}
	}
	if s.RandomQueries < 0 {
		return &ValidationError{Field: "randomQueries", Reason: "cannot be negative"}
	}
	return nil
}

func isPattern(name string) bool {
	for _, p := range Patterns {
		if p == name {
			return true
		}
	}
	return false
}

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Field + ": " + e.Reason
}
