// Package tilecache keeps loaded tiles resident and loads missing ones on
// demand. Concurrent requests for the same key share one load; loads of
// different keys run in parallel.
package tilecache

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a key.
type Loader[V any] func(key uint64) (V, error)

// Options controls residency.
type Options[V any] struct {
	// MaxResident bounds the number of resident values. Zero keeps every
	// loaded value until it is evicted explicitly.
	MaxResident int
	// OnEvict is called when a value leaves the cache.
	OnEvict func(key uint64, v V)
}

// Cache is a load-on-miss cache keyed by uint64. It is safe for concurrent
// use.
type Cache[V any] struct {
	load    Loader[V]
	onEvict func(key uint64, v V)
	flight  singleflight.Group
	loads   atomic.Int64

	mu       sync.RWMutex
	items    map[uint64]V        // unbounded store
	resident map[uint64]struct{} // keys admitted to the bounded store

	bounded *ristretto.Cache[uint64, V]
}

// New creates a cache around load.
func New[V any](load Loader[V], opts Options[V]) (*Cache[V], error) {
	if load == nil {
		return nil, errors.New("tilecache: nil loader")
	}
	if opts.MaxResident < 0 {
		return nil, errors.New("tilecache: negative MaxResident")
	}
	c := &Cache[V]{
		load:    load,
		onEvict: opts.OnEvict,
	}
	if opts.MaxResident == 0 {
		c.items = make(map[uint64]V)
		return c, nil
	}

	c.resident = make(map[uint64]struct{})
	bounded, err := ristretto.NewCache(&ristretto.Config[uint64, V]{
		NumCounters:        int64(opts.MaxResident) * 10,
		MaxCost:            int64(opts.MaxResident),
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict: func(item *ristretto.Item[V]) {
			c.forget(item.Key)
			if c.onEvict != nil {
				c.onEvict(item.Key, item.Value)
			}
		},
		OnReject: func(item *ristretto.Item[V]) {
			c.forget(item.Key)
		},
	})
	if err != nil {
		return nil, err
	}
	c.bounded = bounded
	return c, nil
}

// Get returns the resident value for key, loading it first if needed.
// Load errors are returned to every waiting caller and are not cached.
func (c *Cache[V]) Get(key uint64) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}
	res, err, _ := c.flight.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := c.load(key)
		if err != nil {
			return nil, err
		}
		c.loads.Add(1)
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// Peek returns the value for key without loading it.
func (c *Cache[V]) Peek(key uint64) (V, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *Cache[V]) store(key uint64, v V) {
	if c.bounded == nil {
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return
	}
	// The ristretto callbacks take mu, so it must not be held here.
	c.bounded.Set(key, v, 1)
	c.bounded.Wait()
	if _, ok := c.bounded.Get(key); ok {
		c.mu.Lock()
		c.resident[key] = struct{}{}
		c.mu.Unlock()
	}
}

func (c *Cache[V]) forget(key uint64) {
	c.mu.Lock()
	delete(c.resident, key)
	c.mu.Unlock()
}

// Evict removes key. It reports whether a value was resident.
func (c *Cache[V]) Evict(key uint64) bool {
	var (
		v  V
		ok bool
	)
	if c.bounded != nil {
		v, ok = c.bounded.Get(key)
		c.bounded.Del(key)
		c.forget(key)
	} else {
		c.mu.Lock()
		v, ok = c.items[key]
		delete(c.items, key)
		c.mu.Unlock()
	}
	if ok && c.onEvict != nil {
		c.onEvict(key, v)
	}
	return ok
}

// Keys returns the resident keys in ascending order.
func (c *Cache[V]) Keys() []uint64 {
	var keys []uint64
	if c.bounded != nil {
		c.mu.RLock()
		candidates := make([]uint64, 0, len(c.resident))
		for k := range c.resident {
			candidates = append(candidates, k)
		}
		c.mu.RUnlock()
		for _, k := range candidates {
			if _, ok := c.bounded.Get(k); ok {
				keys = append(keys, k)
			} else {
				c.forget(k)
			}
		}
	} else {
		c.mu.RLock()
		keys = make([]uint64, 0, len(c.items))
		for k := range c.items {
			keys = append(keys, k)
		}
		c.mu.RUnlock()
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of resident values.
func (c *Cache[V]) Len() int {
	return len(c.Keys())
}

// Loads returns how many loads have completed successfully.
func (c *Cache[V]) Loads() int64 {
	return c.loads.Load()
}

// Close releases the bounded store's background workers.
func (c *Cache[V]) Close() {
	if c.bounded != nil {
		c.bounded.Close()
	}
}
