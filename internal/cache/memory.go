package cache

import (
	"context"
	"sync"
)

// memoryTier 是进程内缓存层，超过容量时淘汰生成时间最早的条目。
type memoryTier struct {
	maxEntries int

	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemoryTier 创建内存层；maxEntries <= 0 表示不限容量。
func NewMemoryTier(maxEntries int) Tier {
	return &memoryTier{
		maxEntries: maxEntries,
		entries:    make(map[Key]Entry),
	}
}

func (m *memoryTier) Name() string { return "memory" }

func (m *memoryTier) Get(ctx context.Context, key Key) (Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (m *memoryTier) Put(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.Key()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = entry
	return nil
}

func (m *memoryTier) RemoveDocument(ctx context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if key.DocumentID == documentID {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryTier) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[Key]Entry)
	m.mu.Unlock()
	return nil
}

func (m *memoryTier) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *memoryTier) evictOldestLocked() {
	var (
		oldestKey Key
		found     bool
	)
	for key, entry := range m.entries {
		if !found || entry.GeneratedAt.Before(m.entries[oldestKey].GeneratedAt) {
			oldestKey = key
			found = true
		}
	}
	if found {
		delete(m.entries, oldestKey)
	}
}
