package heightfield

import "fmt"

// CacheKey addresses a field by tile position and level.
type CacheKey struct {
	X, Y  int
	Level int
}

// Cache holds fields until the pyramid needs them to build the next
// level. The emission order guarantees each field is needed exactly
// once, so taking a field consumes it; that is what bounds the memory
// of a pass.
type Cache struct {
	fields map[CacheKey]*Field
}

func NewCache() *Cache {
	return &Cache{fields: make(map[CacheKey]*Field)}
}

// Put stores a field. A duplicate key means the pass is re-generating
// a tile it already generated, which is a bug.
func (c *Cache) Put(key CacheKey, f *Field) error {
	if _, dup := c.fields[key]; dup {
		return fmt.Errorf("heightfield: duplicate cache insert for (%d, %d) lod %d",
			key.X, key.Y, key.Level)
	}
	c.fields[key] = f
	return nil
}

// Take removes and returns the field, or nil if the tile was never
// generated (all-water footprint).
func (c *Cache) Take(key CacheKey) *Field {
	f := c.fields[key]
	delete(c.fields, key)
	return f
}

// Len is the number of fields currently held.
func (c *Cache) Len() int { return len(c.fields) }
