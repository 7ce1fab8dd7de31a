package addressspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogNode describes one pre-seeded node in the in-memory address space.
type CatalogNode struct {
	NodeID       string      `yaml:"node_id"`
	Attribute    string      `yaml:"attribute"`
	InitialValue interface{} `yaml:"initial_value"`
}

// Catalog is the on-disk node catalog for the demo in-memory address space.
type Catalog struct {
	Nodes []CatalogNode `yaml:"nodes"`
}

// LoadCatalog reads and parses a node catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &cat, nil
}
