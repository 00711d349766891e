// Package memory implements the unified memory persistence engine: a
// bounded LRU cache in front of a durable SQLite-backed store with a pure
// in-memory fallback, composed into a namespaced key-value engine with TTL
// expiry, ranked search, and periodic garbage collection.
package memory

import "context"

// Backend is the persistence contract shared by DurableStore and
// VolatileStore. The engine drives exactly one backend per instance; both
// implementations keep identical observable semantics so a fallback switch
// never changes caller behavior.
type Backend interface {
	// Name identifies the backend in stats and events.
	Name() string
	// Store upserts an entry keyed by (namespace, key) and returns the
	// canonical stored record. A fresh insert starts the access counter at
	// zero; replacing an existing entry increments it and preserves the
	// original creation time.
	Store(ctx context.Context, entry *Entry) (*Entry, error)
	// Retrieve returns the entry, or nil when absent. An expired entry is
	// deleted on observation and reported as absent. A successful read
	// bumps the access time and counter.
	Retrieve(ctx context.Context, namespace, key string) (*Entry, error)
	// List returns unexpired entries in a namespace, most recently accessed
	// first. A non-positive limit returns all entries.
	List(ctx context.Context, namespace string, limit int) ([]*Entry, error)
	// Delete removes an entry, reporting whether it existed.
	Delete(ctx context.Context, namespace, key string) (bool, error)
	// Search returns unexpired entries whose key or payload text contains
	// pattern, ordered by access count and then recency of update. A
	// non-positive limit returns all matches.
	Search(ctx context.Context, namespace, pattern string, limit int) ([]*Entry, error)
	// Cleanup eagerly deletes every expired entry and returns the count.
	Cleanup(ctx context.Context) (int64, error)
	// Namespaces lists the distinct namespaces currently holding entries.
	Namespaces(ctx context.Context) ([]string, error)
	// Stats summarizes live entry counts and payload sizes per namespace.
	Stats(ctx context.Context) (BackendStats, error)
	// Optimize flushes or compacts backend state, typically ahead of Close.
	Optimize(ctx context.Context) error
	// Close releases the backend handle. Operations after Close fail with
	// ErrNotInitialized.
	Close() error
}

// BackendStats summarizes live backend contents.
type BackendStats struct {
	Backend    string                    `json:"backend"`
	Entries    int64                     `json:"entries"`
	Bytes      int64                     `json:"bytes"`
	Namespaces map[string]NamespaceStats `json:"namespaces,omitempty"`
}

// NamespaceStats holds per-namespace totals.
type NamespaceStats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
}
