// Package correlation implements the process-wide, thread-safe mapping
// from client-assigned tool-use identifiers to upstream function-call
// metadata (spec §4.6). It is the Go analog of the Rust
// DashMap<String, ToolCallMetadata>-backed ConversationState.
package correlation

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRetention = time.Hour
	shardCount       = 32
)

// Metadata is everything remembered about one tool call.
type Metadata struct {
	FunctionName     string
	ThoughtSignature string
	HasSignature     bool
	Args             json.RawMessage
	Timestamp        time.Time
	RequestIndex     uint64
	ConversationID   string
	OriginalID       string
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Metadata
}

// Store is a sharded concurrent hash map from tool-use id to Metadata,
// with TTL-based cleanup. No operation blocks another for longer than
// the cost of touching one shard (spec §4.6, §5).
type Store struct {
	shards    [shardCount]*shard
	retention time.Duration
	counter   atomic.Uint64
}

// New returns a Store with the default one-hour retention.
func New() *Store {
	return NewWithRetention(defaultRetention)
}

// NewWithRetention returns a Store with a custom retention duration.
func NewWithRetention(retention time.Duration) *Store {
	s := &Store{retention: retention}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Metadata)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// nextRequestIndex atomically increments the request counter and returns
// its value from before the increment.
func (s *Store) nextRequestIndex() uint64 {
	return s.counter.Add(1) - 1
}

// Register inserts or replaces the mapping for toolUseID. conversationID
// defaults to "default" when empty.
func (s *Store) Register(toolUseID, functionName string, thoughtSignature *string, args json.RawMessage, conversationID string) {
	if conversationID == "" {
		conversationID = "default"
	}
	meta := Metadata{
		FunctionName:   functionName,
		Args:           args,
		Timestamp:      time.Now(),
		RequestIndex:   s.nextRequestIndex(),
		ConversationID: conversationID,
		OriginalID:     toolUseID,
	}
	if thoughtSignature != nil {
		meta.ThoughtSignature = *thoughtSignature
		meta.HasSignature = true
	}

	sh := s.shardFor(toolUseID)
	sh.mu.Lock()
	sh.entries[toolUseID] = meta
	sh.mu.Unlock()
}

// GetFunctionName returns the upstream function name registered for id,
// if any.
func (s *Store) GetFunctionName(id string) (string, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	meta, ok := sh.entries[id]
	if !ok {
		return "", false
	}
	return meta.FunctionName, true
}

// GetMetadata returns the full metadata registered for id, if any.
func (s *Store) GetMetadata(id string) (Metadata, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	meta, ok := sh.entries[id]
	return meta, ok
}

// VerifyRoundTrip returns true iff the stored metadata's OriginalID
// matches the id it is keyed under (spec §8.4).
func (s *Store) VerifyRoundTrip(id string) bool {
	meta, ok := s.GetMetadata(id)
	if !ok {
		return false
	}
	return meta.OriginalID == id
}

// Len returns the total number of tracked tool calls across all shards.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// IsEmpty reports whether the store currently tracks no tool calls.
func (s *Store) IsEmpty() bool { return s.Len() == 0 }

// Clear removes every tracked mapping and resets the request counter.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]Metadata)
		sh.mu.Unlock()
	}
	s.counter.Store(0)
}

// CleanupOldEntries removes every entry whose age exceeds the store's
// retention duration and returns the number removed. Safe to call
// concurrently with readers and writers (spec §4.6, §8.8).
func (s *Store) CleanupOldEntries() int {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, meta := range sh.entries {
			if now.Sub(meta.Timestamp) > s.retention {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// GetByConversation returns every tracked entry for a given conversation
// id, for diagnostics.
func (s *Store) GetByConversation(conversationID string) map[string]Metadata {
	out := make(map[string]Metadata)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, meta := range sh.entries {
			if meta.ConversationID == conversationID {
				out[id] = meta
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// GetSortedByRequestIndex returns every tracked entry ordered by the
// sequence number it was registered under, for debugging conversation
// flow.
func (s *Store) GetSortedByRequestIndex() []struct {
	ID       string
	Metadata Metadata
} {
	var all []struct {
		ID       string
		Metadata Metadata
	}
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, meta := range sh.entries {
			all = append(all, struct {
				ID       string
				Metadata Metadata
			}{ID: id, Metadata: meta})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Metadata.RequestIndex < all[j].Metadata.RequestIndex
	})
	return all
}
