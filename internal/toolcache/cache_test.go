package toolcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

func TestCacheMissThenHit(t *testing.T) {
	c := New()
	_, ok := c.Get("search")
	assert.False(t, ok)

	c.Put("search", gemini.FunctionDecl{Name: "search", Description: "d"})
	decl, ok := c.Get("search")
	assert.True(t, ok)
	assert.Equal(t, "search", decl.Name)
}

func TestCacheLenIsEmptyClear(t *testing.T) {
	c := New()
	assert.True(t, c.IsEmpty())
	c.Put("a", gemini.FunctionDecl{Name: "a"})
	c.Put("b", gemini.FunctionDecl{Name: "b"})
	assert.Equal(t, 2, c.Len())

	c.Clear()
	assert.True(t, c.IsEmpty())
}

func TestCacheStats(t *testing.T) {
	c := New()
	c.Put("a", gemini.FunctionDecl{Name: "a"})
	c.Put("b", gemini.FunctionDecl{Name: "b"})

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.ElementsMatch(t, []string{"a", "b"}, stats.Tools)
}

func TestCachePutOverwritesExisting(t *testing.T) {
	c := New()
	c.Put("a", gemini.FunctionDecl{Name: "a", Description: "v1"})
	c.Put("a", gemini.FunctionDecl{Name: "a", Description: "v2"})

	decl, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "v2", decl.Description)
	assert.Equal(t, 1, c.Len())
}

func TestCacheConcurrentReadsAndWrites(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a' + n%26))
			c.Put(name, gemini.FunctionDecl{Name: name})
			c.Get(name)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 26)
}
