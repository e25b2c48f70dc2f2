package correlation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndGetFunctionName(t *testing.T) {
	s := New()
	s.Register("toolu_1", "get_weather", nil, []byte(`{"city":"sf"}`), "conv1")

	name, ok := s.GetFunctionName("toolu_1")
	assert.True(t, ok)
	assert.Equal(t, "get_weather", name)
}

func TestGetFunctionNameMiss(t *testing.T) {
	s := New()
	_, ok := s.GetFunctionName("nope")
	assert.False(t, ok)
}

func TestGetMetadataWithThoughtSignature(t *testing.T) {
	s := New()
	sig := "sig-abc"
	s.Register("toolu_2", "search", &sig, []byte(`{}`), "conv1")

	meta, ok := s.GetMetadata("toolu_2")
	assert.True(t, ok)
	assert.True(t, meta.HasSignature)
	assert.Equal(t, "sig-abc", meta.ThoughtSignature)
	assert.Equal(t, "conv1", meta.ConversationID)
}

func TestRegisterDefaultsConversationID(t *testing.T) {
	s := New()
	s.Register("toolu_3", "f", nil, []byte(`{}`), "")
	meta, ok := s.GetMetadata("toolu_3")
	assert.True(t, ok)
	assert.Equal(t, "default", meta.ConversationID)
}

func TestVerifyRoundTrip(t *testing.T) {
	s := New()
	s.Register("toolu_4", "f", nil, []byte(`{}`), "c")
	assert.True(t, s.VerifyRoundTrip("toolu_4"))
	assert.False(t, s.VerifyRoundTrip("missing"))
}

func TestLenIsEmptyClear(t *testing.T) {
	s := New()
	assert.True(t, s.IsEmpty())
	s.Register("a", "f", nil, nil, "c")
	s.Register("b", "f", nil, nil, "c")
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.IsEmpty())

	s.Clear()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.Len())
}

func TestCleanupOldEntries(t *testing.T) {
	s := NewWithRetention(10 * time.Millisecond)
	s.Register("old", "f", nil, nil, "c")
	time.Sleep(20 * time.Millisecond)
	s.Register("new", "f", nil, nil, "c")

	removed := s.CleanupOldEntries()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
	_, ok := s.GetFunctionName("new")
	assert.True(t, ok)
}

func TestGetByConversation(t *testing.T) {
	s := New()
	s.Register("a", "f1", nil, nil, "conv1")
	s.Register("b", "f2", nil, nil, "conv1")
	s.Register("c", "f3", nil, nil, "conv2")

	entries := s.GetByConversation("conv1")
	assert.Len(t, entries, 2)
	entries2 := s.GetByConversation("conv2")
	assert.Len(t, entries2, 1)
}

func TestGetSortedByRequestIndex(t *testing.T) {
	s := New()
	s.Register("a", "f1", nil, nil, "c")
	s.Register("b", "f2", nil, nil, "c")
	s.Register("c", "f3", nil, nil, "c")

	sorted := s.GetSortedByRequestIndex()
	assert.Len(t, sorted, 3)
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].Metadata.RequestIndex, sorted[i].Metadata.RequestIndex)
	}
}

func TestConcurrentRegisterAndRead(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "toolu_" + string(rune('a'+n%26))
			s.Register(id, "f", nil, nil, "c")
			s.GetFunctionName(id)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 26)
}
