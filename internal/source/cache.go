package source

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Cache keeps successful lookups so repeated records in a run (and across
// runs served by the same process) skip the network.
type Cache struct {
	c *gocache.Cache

	mu   sync.RWMutex
	ttls map[string]time.Duration
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl, cleanup time.Duration) *Cache {
	return &Cache{c: gocache.New(ttl, cleanup), ttls: make(map[string]time.Duration)}
}

// SetTTL overrides the expiry for one source's entries.
func (c *Cache) SetTTL(name string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls[name] = ttl
}

// CacheKey builds the key for one source, record and entity type.
func CacheKey(name string, rec model.Record, et model.EntityType) string {
	return name + "#" + string(et) + "#" + rec.Key()
}

// Get returns a copy of a cached response.
func (c *Cache) Get(key string) (*Response, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	r := v.(*Response)
	return cloneResponse(r), true
}

// Put stores a copy of r.
func (c *Cache) Put(key string, r *Response) {
	c.c.Set(key, cloneResponse(r), c.expiry(key))
}

func (c *Cache) expiry(key string) time.Duration {
	name, _, _ := strings.Cut(key, "#")
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ttl, ok := c.ttls[name]; ok {
		return ttl
	}
	return gocache.DefaultExpiration
}

// Len is the number of live entries.
func (c *Cache) Len() int { return c.c.ItemCount() }

// Flush empties the cache.
func (c *Cache) Flush() { c.c.Flush() }

func cloneResponse(r *Response) *Response {
	out := &Response{Confidence: r.Confidence, Fields: r.Fields.Clone()}
	if r.Verified != nil {
		out.Verified = make(map[string]bool, len(r.Verified))
		for k, v := range r.Verified {
			out.Verified[k] = v
		}
	}
	return out
}
