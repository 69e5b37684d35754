// Package dedup implements an in-flight request cache: concurrent callers
// sharing a (path, canonical-input) key attach to the same in-flight effect
// and observe the same settlement; the entry is removed once settled, so a
// subsequent call with the same key runs afresh. This is explicitly not a
// result cache — nothing here survives past the in-flight window.
package dedup

import (
	"sync"

	"github.com/tomtom215/rpckit/canonical"
)

// entry is one in-flight call. done is closed when result/err are set.
type entry struct {
	done   chan struct{}
	result any
	err    error
}

// Cache is a scoped (per-client) dedup cache. A process-wide instance is
// just a Cache held in this package's package-level var (see Global).
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Key derives the dedup key from path and the canonical form of input.
func Key(path string, input any) string {
	return path + "|" + canonical.Serialize(input)
}

// Do executes fn exactly once per in-flight key. Concurrent callers sharing
// key block on the same entry and all observe its result or error,
// including the same failure. The entry is removed once fn settles so a
// later call with the same key executes afresh.
func (c *Cache) Do(key string, fn func() (any, error)) (any, error) {
	result, err, _ := c.DoMeasured(key, fn)
	return result, err
}

// DoMeasured is Do plus a hit flag: true when this call attached to an
// already in-flight entry instead of executing fn itself, for callers that
// want to count dedup hits.
func (c *Cache) DoMeasured(key string, fn func() (any, error)) (any, error, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.done
		return e.result, e.err, true
	}

	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	result, err := fn()

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	e.result, e.err = result, err
	close(e.done)
	return result, err, false
}

// Clear removes all in-flight entries. Callers already waiting on an entry
// are unaffected — they still resolve to its settlement; Clear only stops
// *new* callers from joining those entries, so the next call with a
// cleared key executes afresh.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// ClearKey removes one in-flight entry by key, if present.
func (c *Cache) ClearKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// global is the process-wide dedup cache used when Config.Dedupe.Scope is
// "global". Scoped (per-client) caches never share state with it.
var global = New()

// Global returns the process-wide dedup cache instance.
func Global() *Cache { return global }
