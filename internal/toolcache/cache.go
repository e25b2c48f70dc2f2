// Package toolcache memoizes Claude-to-upstream tool-schema conversions
// behind a lock-free-read, copy-on-write map (spec §4.3). It is the Go
// analog of the Rust ArcSwap<HashMap<String, FunctionDecl>>-backed cache.
package toolcache

import (
	"sync"
	"sync/atomic"

	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

// Cache maps tool name to its converted upstream function declaration.
// Reads never block: Get loads an immutable snapshot. Writes are
// serialized against each other (via writeMu) but never block readers,
// since publication is a single atomic pointer swap (spec §4.3, §5).
type Cache struct {
	snapshot atomic.Pointer[map[string]gemini.FunctionDecl]
	writeMu  sync.Mutex
}

// New returns an empty Cache.
func New() *Cache {
	c := &Cache{}
	empty := make(map[string]gemini.FunctionDecl)
	c.snapshot.Store(&empty)
	return c
}

// Get returns the cached declaration for name, if present. Lock-free.
func (c *Cache) Get(name string) (gemini.FunctionDecl, bool) {
	m := *c.snapshot.Load()
	decl, ok := m[name]
	return decl, ok
}

// Put inserts or replaces the declaration for name via a clone-insert-
// publish cycle: concurrent readers in flight continue to observe the
// pre-publication snapshot (spec §4.3: "no stop-the-world").
func (c *Cache) Put(name string, decl gemini.FunctionDecl) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := *c.snapshot.Load()
	next := make(map[string]gemini.FunctionDecl, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = decl
	c.snapshot.Store(&next)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(*c.snapshot.Load())
}

// IsEmpty reports whether the cache currently holds no entries.
func (c *Cache) IsEmpty() bool { return c.Len() == 0 }

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	empty := make(map[string]gemini.FunctionDecl)
	c.snapshot.Store(&empty)
}

// Stats is a diagnostic snapshot of cache occupancy.
type Stats struct {
	TotalEntries int
	Tools        []string
}

// Stats returns the current occupancy and tool name list.
func (c *Cache) Stats() Stats {
	m := *c.snapshot.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return Stats{TotalEntries: len(m), Tools: names}
}
