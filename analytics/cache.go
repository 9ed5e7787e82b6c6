package analytics

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// maxCacheEntries bounds a ResultCache; expired entries are purged first.
const maxCacheEntries = 512

// ResultCache memoizes composed views. Keys come from Key, so an entry is
// reused only when the input data, the mode, the filter and the timezone all
// match.
type ResultCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// NewResultCache creates a cache whose entries live for ttl. A zero ttl
// disables caching.
func NewResultCache[V any](ttl time.Duration) *ResultCache[V] {
	return &ResultCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live entry for key.
func (c *ResultCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key.
func (c *ResultCache[V]) Put(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= maxCacheEntries {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= maxCacheEntries {
			clear(c.entries)
		}
	}
	c.entries[key] = cacheEntry[V]{value: value, expires: now.Add(c.ttl)}
}

// Len returns the number of stored entries, live or not.
func (c *ResultCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint hashes the JSON encoding of input.
func Fingerprint(input any) (uint64, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}

// Key joins a fingerprint with the parameters that shape the output.
func Key(fingerprint uint64, parts ...string) string {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatUint(fingerprint, 16))
	for _, p := range parts {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(p)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
