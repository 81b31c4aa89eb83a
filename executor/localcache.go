package executor

import "github.com/goliatone/go-sqlmap/cache"

// placeholder marks a key whose query is still running.
type placeholder struct{}

var executionPlaceholder = placeholder{}

type localEntry struct {
	key   *cache.CacheKey
	value any
}

// localCache holds the results of one executor. Keys are bucketed by their
// string form and compared with Equal.
type localCache struct {
	entries map[string][]localEntry
	size    int
}

func newLocalCache() *localCache {
	return &localCache{entries: make(map[string][]localEntry)}
}

func (c *localCache) get(key *cache.CacheKey) (any, bool) {
	for _, e := range c.entries[key.String()] {
		if e.key.Equal(key) {
			return e.value, true
		}
	}
	return nil, false
}

func (c *localCache) put(key *cache.CacheKey, value any) {
	s := key.String()
	bucket := c.entries[s]
	for i, e := range bucket {
		if e.key.Equal(key) {
			bucket[i].value = value
			return
		}
	}
	c.entries[s] = append(bucket, localEntry{key: key, value: value})
	c.size++
}

func (c *localCache) remove(key *cache.CacheKey) {
	s := key.String()
	bucket := c.entries[s]
	for i, e := range bucket {
		if e.key.Equal(key) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			c.size--
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.entries, s)
	} else {
		c.entries[s] = bucket
	}
}

func (c *localCache) clear() {
	c.entries = make(map[string][]localEntry)
	c.size = 0
}

func (c *localCache) len() int { return c.size }
