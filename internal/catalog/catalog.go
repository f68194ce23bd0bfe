// Package catalog describes the generation kinds the service offers: which
// remote endpoint and model each uses, what it costs, and how its completion
// is announced to the user.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/phrazzld/genflow/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog document cannot be used.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Entry is the catalog definition of one task kind.
type Entry struct {
	Kind     domain.TaskKind `yaml:"kind"`
	Endpoint string          `yaml:"endpoint"`
	Model    string          `yaml:"model"`
	Ratio    string          `yaml:"ratio"`
	Duration int             `yaml:"duration"`
	Cost     int             `yaml:"cost"`
	Title    string          `yaml:"title"`
}

type document struct {
	FallbackTitle string  `yaml:"fallback_title"`
	Kinds         []Entry `yaml:"kinds"`
}

// Catalog is an immutable lookup of task kinds.
type Catalog struct {
	entries       map[domain.TaskKind]Entry
	order         []domain.TaskKind
	fallbackTitle string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		// ALLOW-PANIC: the embedded document is validated by tests
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(doc.Kinds) == 0 {
		return nil, fmt.Errorf("%w: no kinds defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		entries:       make(map[domain.TaskKind]Entry, len(doc.Kinds)),
		fallbackTitle: doc.FallbackTitle,
	}
	if c.fallbackTitle == "" {
		c.fallbackTitle = "Generation Complete!"
	}

	for i, e := range doc.Kinds {
		switch {
		case e.Kind == "":
			return nil, fmt.Errorf("%w: entry %d has no kind", ErrInvalidCatalog, i)
		case e.Endpoint == "":
			return nil, fmt.Errorf("%w: kind %s has no endpoint", ErrInvalidCatalog, e.Kind)
		case e.Cost < 0:
			return nil, fmt.Errorf("%w: kind %s has negative cost", ErrInvalidCatalog, e.Kind)
		}
		if _, dup := c.entries[e.Kind]; dup {
			return nil, fmt.Errorf("%w: kind %s defined twice", ErrInvalidCatalog, e.Kind)
		}
		c.entries[e.Kind] = e
		c.order = append(c.order, e.Kind)
	}

	return c, nil
}

// Lookup returns the entry for kind.
func (c *Catalog) Lookup(kind domain.TaskKind) (Entry, bool) {
	e, ok := c.entries[kind]
	return e, ok
}

// Title returns the notification title for kind, falling back to a generic one.
func (c *Catalog) Title(kind domain.TaskKind) string {
	if e, ok := c.entries[kind]; ok && e.Title != "" {
		return e.Title
	}
	return c.fallbackTitle
}

// Kinds lists the defined kinds in document order.
func (c *Catalog) Kinds() []domain.TaskKind {
	return slices.Clone(c.order)
}
