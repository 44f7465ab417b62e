package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk layout of a relay catalog
type File struct {
	Primary string       `yaml:"primary" toml:"primary"`
	Relays  []Descriptor `yaml:"relays" toml:"relays"`
}

// LoadCatalog reads a catalog from a YAML or TOML file. An empty path
// yields the built-in relays.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read relay catalog: %w", err)
	}

	f, err := ParseCatalog(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse relay catalog %s: %w", path, err)
	}

	c := NewCatalog(f.Relays)
	if f.Primary != "" {
		c = c.WithPrimary(f.Primary)
	}
	return c, nil
}

// ParseCatalog decodes catalog data. ext selects the format (".toml" or
// anything else for YAML).
func ParseCatalog(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
