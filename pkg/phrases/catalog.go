package phrases

import (
	_ "embed"
	"fmt"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogYAML []byte

// Catalog is a named set of phrase pools. Each key maps to one or more
// alternative phrasings; a phrase may be a text/template.
type Catalog struct {
	Name    string              `yaml:"name"`
	Version string              `yaml:"version"`
	Phrases map[string][]string `yaml:"phrases"`
}

// DefaultCatalog returns a fresh copy of the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("phrases: built-in catalog is invalid: %v", err))
	}
	return c
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every pool is non-empty and every phrase parses.
func (c *Catalog) Validate() error {
	if len(c.Phrases) == 0 {
		return fmt.Errorf("catalog %q has no phrases", c.Name)
	}
	for _, key := range c.Keys() {
		pool := c.Phrases[key]
		if len(pool) == 0 {
			return fmt.Errorf("phrase %q has an empty pool", key)
		}
		for i, p := range pool {
			if p == "" {
				return fmt.Errorf("phrase %q[%d] is empty", key, i)
			}
			if _, err := template.New(key).Funcs(templateFuncs).Parse(p); err != nil {
				return fmt.Errorf("phrase %q[%d]: %w", key, i, err)
			}
		}
	}
	return nil
}

// Keys returns the phrase keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Phrases))
	for k := range c.Phrases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pool returns the alternatives registered for key.
func (c *Catalog) Pool(key string) []string {
	return c.Phrases[key]
}

// Merge returns a new catalog with the pools of override replacing those
// of c key by key.
func (c *Catalog) Merge(override *Catalog) *Catalog {
	out := &Catalog{
		Name:    c.Name,
		Version: c.Version,
		Phrases: make(map[string][]string, len(c.Phrases)),
	}
	for k, v := range c.Phrases {
		out.Phrases[k] = append([]string(nil), v...)
	}
	if override == nil {
		return out
	}
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	for k, v := range override.Phrases {
		out.Phrases[k] = append([]string(nil), v...)
	}
	return out
}
