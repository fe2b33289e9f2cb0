package metadata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process Store. Stream returns documents in
// insertion order. It backs tests and the --ephemeral CLI mode.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[CollectionRef]*memCollection

	reads  atomic.Int64
	writes atomic.Int64
}

type memCollection struct {
	order []string
	docs  map[string]Document
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[CollectionRef]*memCollection)}
}

func (m *MemoryStore) Get(ctx context.Context, ref DocumentRef) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.reads.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[ref.Collection]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	doc, ok := col.docs[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (m *MemoryStore) Set(ctx context.Context, ref DocumentRef, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.writes.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[ref.Collection]
	if !ok {
		col = &memCollection{docs: make(map[string]Document)}
		m.collections[ref.Collection] = col
	}
	if _, exists := col.docs[ref.ID]; !exists {
		col.order = append(col.order, ref.ID)
	}
	col.docs[ref.ID] = doc.Clone()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, ref DocumentRef, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.writes.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[ref.Collection]
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	doc, ok := col.docs[ref.ID]
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	merged := doc.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	col.docs[ref.ID] = merged
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, ref DocumentRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.writes.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[ref.Collection]
	if !ok {
		return nil
	}
	if _, exists := col.docs[ref.ID]; !exists {
		return nil
	}
	delete(col.docs, ref.ID)
	for i, id := range col.order {
		if id == ref.ID {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Stream(ctx context.Context, c CollectionRef) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.reads.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[c]
	if !ok {
		return nil, nil
	}
	out := make([]Snapshot, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, Snapshot{ID: id, Data: col.docs[id].Clone()})
	}
	return out, nil
}

func (m *MemoryStore) Exists(ctx context.Context, ref DocumentRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.reads.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[ref.Collection]
	if !ok {
		return false, nil
	}
	_, exists := col.docs[ref.ID]
	return exists, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Writes returns how many Set/Update/Delete calls the store has served.
func (m *MemoryStore) Writes() int64 {
	return m.writes.Load()
}

// Reads returns how many Get/Stream/Exists calls the store has served.
func (m *MemoryStore) Reads() int64 {
	return m.reads.Load()
}
