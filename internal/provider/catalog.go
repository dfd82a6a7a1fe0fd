package provider

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"assistant-router/internal/models"
)

// ErrUnknownModel indicates the requested model is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// Entry is a catalog record: a resolved descriptor plus its display name.
type Entry struct {
	models.ModelDescriptor
	DisplayName string
}

// Catalog lists the models offered to users. Membership is configuration;
// routing does not require a model to be listed.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Register adds an entry.
func (c *Catalog) Register(entry Entry) error {
	if entry.ID == "" {
		return errors.New("model id must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, entry.ID)
	}
	c.entries[entry.ID] = entry
	return nil
}

// Lookup returns the entry for a given model ID.
func (c *Catalog) Lookup(modelID string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[modelID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return entry, nil
}

// List returns all entries ordered by family, then ID.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(a.Family, b.Family); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
