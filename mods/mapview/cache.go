package mapview

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// CacheHash synthesizes the cache key of a native layer. Variant
// separates native layers of the same record, e.g. one per projection.
func CacheHash(id string, variant string) string {
	d := xxhash.New()
	d.WriteString(id)
	d.WriteString("\x00")
	d.WriteString(variant)
	return strconv.FormatUint(d.Sum64(), 16)
}

type cacheEntry[T any] struct {
	id    string
	value T
}

// LayerCache memoizes native layers. Entries live until they are
// invalidated explicitly.
type LayerCache[T any] struct {
	entries cmap.ConcurrentMap[string, cacheEntry[T]]
}

func NewLayerCache[T any]() *LayerCache[T] {
	return &LayerCache[T]{entries: cmap.New[cacheEntry[T]]()}
}

func (c *LayerCache[T]) Get(id, variant string) (T, bool) {
	e, ok := c.entries.Get(CacheHash(id, variant))
	return e.value, ok
}

func (c *LayerCache[T]) Set(id, variant string, v T) {
	c.entries.Set(CacheHash(id, variant), cacheEntry[T]{id: id, value: v})
}

// GetOrCreate returns the cached value or stores the one create returns.
// created reports whether create was called.
func (c *LayerCache[T]) GetOrCreate(id, variant string, create func() (T, error)) (v T, created bool, err error) {
	if v, ok := c.Get(id, variant); ok {
		return v, false, nil
	}
	v, err = create()
	if err != nil {
		return v, false, err
	}
	c.Set(id, variant, v)
	return v, true, nil
}

// Invalidate drops every variant cached for id and returns how many.
func (c *LayerCache[T]) Invalidate(id string) int {
	var keys []string
	for item := range c.entries.IterBuffered() {
		if item.Val.id == id {
			keys = append(keys, item.Key)
		}
	}
	for _, k := range keys {
		c.entries.Remove(k)
	}
	return len(keys)
}

func (c *LayerCache[T]) Len() int {
	return c.entries.Count()
}

func (c *LayerCache[T]) Clear() {
	c.entries.Clear()
}
