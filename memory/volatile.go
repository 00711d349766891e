package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// VolatileStore keeps entries in process memory. It serves as the fallback
// backend when the SQLite database cannot be opened and honors the same
// contract as DurableStore, so callers never branch on which backend they
// got. Contents are lost on Close.
type VolatileStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	nextID  int64
}

var _ Backend = (*VolatileStore)(nil)

// NewVolatileStore returns an empty in-memory backend.
func NewVolatileStore() *VolatileStore {
	return &VolatileStore{entries: make(map[string]*Entry)}
}

// Name implements Backend.
func (s *VolatileStore) Name() string { return "in-memory" }

// Store implements Backend. Replacing an existing entry preserves its
// creation time and row ID and increments the access counter, matching the
// durable upsert.
func (s *VolatileStore) Store(ctx context.Context, entry *Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return nil, ErrNotInitialized
	}

	now := time.Now()
	stored := &Entry{
		Key:        entry.Key,
		Namespace:  entry.Namespace,
		Value:      entry.Value,
		Tags:       normalizeTags(entry.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
		Size:       entry.Value.Size(),
		Compressed: entry.Compressed,
	}
	if len(entry.Metadata) > 0 {
		stored.Metadata = maps.Clone(entry.Metadata)
	}
	if entry.TTL > 0 {
		stored.TTL = entry.TTL
		stored.ExpiresAt = now.Add(entry.TTL)
	}

	composite := stored.CompositeKey()
	if prev, ok := s.entries[composite]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		stored.AccessCount = prev.AccessCount + 1
	} else {
		s.nextID++
		stored.ID = s.nextID
	}
	s.entries[composite] = stored
	return stored.Clone(), nil
}

// Retrieve implements Backend with the same lazy expiry as the durable
// store.
func (s *VolatileStore) Retrieve(ctx context.Context, namespace, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return nil, ErrNotInitialized
	}

	composite := CompositeKey(namespace, key)
	entry, ok := s.entries[composite]
	if !ok {
		return nil, nil
	}

	now := time.Now()
	if entry.Expired(now) {
		delete(s.entries, composite)
		return nil, nil
	}
	entry.AccessedAt = now
	entry.AccessCount++
	return entry.Clone(), nil
}

// List implements Backend.
func (s *VolatileStore) List(ctx context.Context, namespace string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries == nil {
		return nil, ErrNotInitialized
	}

	now := time.Now()
	var entries []*Entry
	for _, entry := range s.entries {
		if entry.Namespace != namespace || entry.Expired(now) {
			continue
		}
		entries = append(entries, entry.Clone())
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := b.AccessedAt.Compare(a.AccessedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return clipLimit(entries, limit), nil
}

// Delete implements Backend.
func (s *VolatileStore) Delete(ctx context.Context, namespace, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return false, ErrNotInitialized
	}

	composite := CompositeKey(namespace, key)
	if _, ok := s.entries[composite]; !ok {
		return false, nil
	}
	delete(s.entries, composite)
	return true, nil
}

// Search implements Backend: exact substring over key and serialized value,
// ranked by access count, then update recency.
func (s *VolatileStore) Search(ctx context.Context, namespace, pattern string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries == nil {
		return nil, ErrNotInitialized
	}

	now := time.Now()
	var entries []*Entry
	for _, entry := range s.entries {
		if entry.Namespace != namespace || entry.Expired(now) {
			continue
		}
		if !strings.Contains(entry.Key, pattern) && !strings.Contains(entry.Value.Text(), pattern) {
			continue
		}
		entries = append(entries, entry.Clone())
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := cmp.Compare(b.AccessCount, a.AccessCount); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return clipLimit(entries, limit), nil
}

// Cleanup implements Backend.
func (s *VolatileStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return 0, ErrNotInitialized
	}

	now := time.Now()
	var removed int64
	for composite, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, composite)
			removed++
		}
	}
	return removed, nil
}

// Namespaces implements Backend.
func (s *VolatileStore) Namespaces(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries == nil {
		return nil, ErrNotInitialized
	}

	now := time.Now()
	seen := make(map[string]struct{})
	for _, entry := range s.entries {
		if entry.Expired(now) {
			continue
		}
		seen[entry.Namespace] = struct{}{}
	}
	namespaces := slices.Collect(maps.Keys(seen))
	slices.Sort(namespaces)
	return namespaces, nil
}

// Stats implements Backend over live entries.
func (s *VolatileStore) Stats(ctx context.Context) (BackendStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries == nil {
		return BackendStats{}, ErrNotInitialized
	}

	now := time.Now()
	stats := BackendStats{Backend: s.Name(), Namespaces: make(map[string]NamespaceStats)}
	for _, entry := range s.entries {
		if entry.Expired(now) {
			continue
		}
		ns := stats.Namespaces[entry.Namespace]
		ns.Entries++
		ns.Bytes += entry.Size
		stats.Namespaces[entry.Namespace] = ns
		stats.Entries++
		stats.Bytes += entry.Size
	}
	return stats, nil
}

// Optimize implements Backend as a no-op; there is nothing to compact.
func (s *VolatileStore) Optimize(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries == nil {
		return ErrNotInitialized
	}
	return nil
}

// Close implements Backend, discarding all entries.
func (s *VolatileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

func clipLimit(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
