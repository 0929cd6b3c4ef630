package model

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of loaded blueprints, keyed by model id.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]*Blueprint
}

func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]*Blueprint)}
}

// Register validates and stores bp, replacing any blueprint with the same id.
func (c *Catalog) Register(bp *Blueprint) error {
	if bp == nil {
		return fmt.Errorf("%w: nil blueprint", ErrInvalidBlueprint)
	}
	if err := bp.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.models[bp.ID] = bp
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Get(id string) (*Blueprint, bool) {
	c.mu.RLock()
	bp, ok := c.models[id]
	c.mu.RUnlock()
	return bp, ok
}

// Lookup is Get with an ErrUnknownModel error.
func (c *Catalog) Lookup(id string) (*Blueprint, error) {
	bp, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return bp, nil
}

// IDs returns the sorted model ids.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

type catalogFile struct {
	Models []*Blueprint `yaml:"models"`
}

// LoadYAML registers every blueprint of a catalog document and returns how
// many were loaded. Nothing is registered when any blueprint is invalid.
func (c *Catalog) LoadYAML(r io.Reader) (int, error) {
	models, err := decodeCatalog(r)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	for _, bp := range models {
		c.models[bp.ID] = bp
	}
	c.mu.Unlock()
	return len(models), nil
}

// LoadFile is LoadYAML over the file at path.
func (c *Catalog) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()
	return c.LoadYAML(f)
}

// ReloadFile replaces the whole catalog with the file at path. The catalog
// is left untouched when the file is unreadable or invalid. Trackers keep
// the blueprint they were created from.
func (c *Catalog) ReloadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	models, err := decodeCatalog(f)
	if err != nil {
		return 0, err
	}
	next := make(map[string]*Blueprint, len(models))
	for _, bp := range models {
		next[bp.ID] = bp
	}
	c.mu.Lock()
	c.models = next
	c.mu.Unlock()
	return len(next), nil
}

func decodeCatalog(r io.Reader) ([]*Blueprint, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, bp := range file.Models {
		if bp == nil {
			return nil, fmt.Errorf("%w: empty catalog entry", ErrInvalidBlueprint)
		}
		if err := bp.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Models, nil
}
