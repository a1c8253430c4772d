package resolver

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// cache memoizes successful resolutions and collapses concurrent lookups of
// the same reference into one round of API calls. Failures are not stored.
type cache struct {
	mu      sync.RWMutex
	entries map[Reference]Resolution
	group   singleflight.Group
}

func newCache() *cache {
	return &cache{entries: make(map[Reference]Resolution)}
}

func (c *cache) do(ref Reference, fn func() (Resolution, error)) (Resolution, error) {
	c.mu.RLock()
	res, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok {
		return res, nil
	}

	v, err, _ := c.group.Do(cacheKey(ref), func() (any, error) {
		res, err := fn()
		if err != nil {
			return Resolution{}, err
		}
		c.mu.Lock()
		c.entries[ref] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return v.(Resolution), nil
}

func cacheKey(ref Reference) string {
	return ref.Repository.String() + "@" + ref.Specifier + "#" + ref.Label
}
