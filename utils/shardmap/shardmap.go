// Package shardmap is a concurrent map split into independently locked
// shards. A shard lock is only held while looking up or inserting a value,
// so values that carry their own mutex give per-key serialisation without
// callers on different keys contending.
package shardmap

import (
	"sync"

	"github.com/twmb/murmur3"
)

const DefaultShards = 32

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

type Map[V any] struct {
	shards []*shard[V]
}

// New creates a map with n shards; n <= 0 uses DefaultShards.
func New[V any](n int) *Map[V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Map[V]{shards: make([]*shard[V], n)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[murmur3.StringSum32(key)%uint32(len(m.shards))]
}

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// GetOrCreate returns the existing value for key or stores and returns the
// result of create. create runs under the shard lock and must not block.
func (m *Map[V]) GetOrCreate(key string, create func() V) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return v, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok {
		return v, true
	}
	v = create()
	s.items[key] = v
	return v, false
}

func (m *Map[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// CompareAndDelete removes key only while it still maps to a value for
// which match returns true.
func (m *Map[V]) CompareAndDelete(key string, match func(V) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok && match(v) {
		delete(s.items, key)
		return true
	}
	return false
}

// Range calls fn for every entry until fn returns false. Each shard is
// read-locked only while it is being visited.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		snapshot := make(map[string]V, len(s.items))
		for k, v := range s.items {
			snapshot[k] = v
		}
		s.mu.RUnlock()

		for k, v := range snapshot {
			if !fn(k, v) {
				return
			}
		}
	}
}

func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
