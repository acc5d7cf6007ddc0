package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore 是进程内 Store 实现，供测试与临时站点使用。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]Document
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[int64]Document)}
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *MemoryStore) GetByPath(ctx context.Context, path string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		if doc.Path == path {
			return cloneDocument(doc), nil
		}
	}
	return Document{}, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]Document, error) {
	m.mu.RLock()
	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		if matchesOptions(doc, opts) {
			out = append(out, cloneDocument(doc))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.Path == doc.Path {
			return Document{}, fmt.Errorf("%w: path %s already exists", ErrInvalidDocument, doc.Path)
		}
	}
	m.nextID++
	doc.ID = m.nextID
	m.docs[doc.ID] = cloneDocument(doc)
	return cloneDocument(doc), nil
}

func (m *MemoryStore) Update(ctx context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return Document{}, ErrNotFound
	}
	for id, existing := range m.docs {
		if id != doc.ID && existing.Path == doc.Path {
			return Document{}, fmt.Errorf("%w: path %s already exists", ErrInvalidDocument, doc.Path)
		}
	}
	m.docs[doc.ID] = cloneDocument(doc)
	return cloneDocument(doc), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func cloneDocument(doc Document) Document {
	if doc.Tags != nil {
		tags := make([]string, len(doc.Tags))
		copy(tags, doc.Tags)
		doc.Tags = tags
	}
	return doc
}

var _ Store = (*MemoryStore)(nil)
