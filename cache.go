package twinsync

import (
	"slices"
	"sync"
)

// A Cache remembers which component types and entities are known to exist in
// the remote service for the duration of one import job. Entries are only ever
// added; they are consulted before any remote existence check.
//
// The zero-value Cache is ready for use.
//
// A Cache is safe for concurrent use.
type Cache struct {
	mu             sync.Mutex
	componentTypes map[string]struct{}
	entities       map[string]struct{}
}

// HasEntity reports whether the entity is known to exist.
func (c *Cache) HasEntity(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entities[id]
	return ok
}

// MarkEntity records that the entity exists.
func (c *Cache) MarkEntity(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Make the zero-value meaningful.
	if c.entities == nil {
		c.entities = make(map[string]struct{})
	}
	c.entities[id] = struct{}{}
}

// HasComponentType reports whether the component type is known to exist.
func (c *Cache) HasComponentType(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.componentTypes[id]
	return ok
}

// MarkComponentType records that the component type exists and is active.
func (c *Cache) MarkComponentType(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.componentTypes == nil {
		c.componentTypes = make(map[string]struct{})
	}
	c.componentTypes[id] = struct{}{}
}

// Entities returns the sorted ids of all entities known to exist.
func (c *Cache) Entities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.entities)
}

// ComponentTypes returns the sorted ids of all component types known to exist.
func (c *Cache) ComponentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.componentTypes)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
