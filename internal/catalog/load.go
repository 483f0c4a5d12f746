package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Parse decodes a YAML catalog definition and indexes it
func Parse(data []byte) (*Catalog, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(def)
}

// Load reads a YAML catalog definition from disk
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return c, nil
}

// Default returns the demonstration catalog shipped with the binary
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}
