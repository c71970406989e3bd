package records

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrNotLoaded = errors.New("collection not loaded")

// Collection keeps one named collection in memory for a domain manager
// (products, bills) and writes through to the Store.
type Collection struct {
	name   string
	store  *Store
	items  []Record
	loaded bool
	mu     sync.RWMutex
}

func NewCollection(name string, store *Store) *Collection {
	return &Collection{
		name:  name,
		store: store,
	}
}

func (c *Collection) Name() string {
	return c.name
}

// Load reads the collection from the store into memory.
func (c *Collection) Load(ctx context.Context) []Record {
	items := c.store.Load(ctx, c.name)
	c.set(items)
	return clone(items)
}

// Items returns a copy of the in-memory records, loading them on first use.
func (c *Collection) Items(ctx context.Context) []Record {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return clone(c.items)
	}
	c.mu.RUnlock()
	return c.Load(ctx)
}

// Save persists items and keeps them in memory. The save hooks run once
// memory holds the new items.
func (c *Collection) Save(ctx context.Context, items []Record) error {
	if err := c.store.Replace(ctx, c.name, items); err != nil {
		return err
	}
	c.set(items)
	c.store.notify(ctx, c.name)
	return nil
}

func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Reset drops the in-memory copy; the next Items call reloads from the store.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.loaded = false
}

// InMemoryCollection exposes the records held in memory to the backup service.
func (c *Collection) InMemoryCollection() (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	return clone(c.items), nil
}

// ReplaceInMemoryCollection swaps the records held in memory after a restore.
func (c *Collection) ReplaceInMemoryCollection(v any) error {
	items, ok := v.([]Record)
	if !ok {
		return errors.Errorf("unexpected %s container %T", c.name, v)
	}
	c.set(items)
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (c *Collection) set(items []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = clone(items)
	c.loaded = true
}

func clone(items []Record) []Record {
	out := make([]Record, len(items))
	copy(out, items)
	return out
}
