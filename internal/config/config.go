// Package config handles configuration loading and conversion defaults.
package config

import (
	"fmt"
	"os"

	"github.com/woozymasta/shp2geojson/internal/geo"

	"gopkg.in/yaml.v3"
)

// DefaultAssumedCRS is used when a shapefile ships without a .prj file.
// TWD97 / TM2 zone 121 matches the datasets this tool was first written for.
const DefaultAssumedCRS = "EPSG:3826"

// Config represents the root configuration file structure.
type Config struct {
	// AssumedCRS is an EPSG reference, registered name or PROJ string.
	AssumedCRS string `yaml:"assumed_crs,omitempty"`

	// Encoding is the DBF text encoding used when no .cpg file exists.
	Encoding string `yaml:"encoding,omitempty"`

	// CRS extends the built-in registry.
	CRS []geo.CRS `yaml:"crs,omitempty"`

	BBox   bool `yaml:"bbox,omitempty"`
	Indent bool `yaml:"indent,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{AssumedCRS: DefaultAssumedCRS}
}

// Load reads and parses the YAML configuration file from the specified path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.AssumedCRS == "" {
		cfg.AssumedCRS = DefaultAssumedCRS
	}

	return cfg, nil
}

// Registry returns the built-in CRS registry extended with configured entries.
func (c *Config) Registry() (*geo.Registry, error) {
	reg := geo.NewRegistry()
	for i, entry := range c.CRS {
		if err := reg.Register(entry); err != nil {
			return nil, fmt.Errorf("crs[%d]: %w", i, err)
		}
	}

	return reg, nil
}
