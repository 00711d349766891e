package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lanemc/swarmmem/observability"
)

// StoreOptions control a single Store call. The zero value writes to the
// default namespace with no TTL, tags, or metadata.
type StoreOptions struct {
	Namespace string
	TTL       time.Duration
	Tags      []string
	Metadata  map[string]string
}

// RetrieveOptions control a single Retrieve call.
type RetrieveOptions struct {
	Namespace string
}

// ListOptions control a single List call. Limit 0 applies DefaultListLimit;
// a negative limit returns everything.
type ListOptions struct {
	Namespace string
	Limit     int
}

// DeleteOptions control a single Delete call.
type DeleteOptions struct {
	Namespace string
}

// SearchOptions control a single Search call. Limit follows ListOptions.
type SearchOptions struct {
	Namespace string
	Limit     int
}

// Stats aggregates backend and cache statistics for one engine.
type Stats struct {
	Backend    string                    `json:"backend"`
	Fallback   bool                      `json:"fallback"`
	Entries    int64                     `json:"entries"`
	Bytes      int64                     `json:"bytes"`
	Namespaces map[string]NamespaceStats `json:"namespaces,omitempty"`
	Cache      CacheStats                `json:"cache"`
}

// BackupInfo describes a completed backup snapshot.
type BackupInfo struct {
	Path       string    `json:"path"`
	Entries    int64     `json:"entries"`
	Namespaces int       `json:"namespaces"`
	CreatedAt  time.Time `json:"created_at"`
}

// backupDocument is the JSON layout written by Backup.
type backupDocument struct {
	Version    int                 `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	Backend    string              `json:"backend"`
	Namespaces map[string][]*Entry `json:"namespaces"`
}

const backupVersion = 1

// Option configures an Engine during NewEngine. Options are applied before
// backend selection so construction-time events reach an injected observer.
type Option func(*Engine)

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithBackend injects a pre-built backend, bypassing selection. Intended for
// tests and embedders that manage their own store.
func WithBackend(b Backend) Option {
	return func(e *Engine) {
		if b != nil {
			e.backend = b
		}
	}
}

// Engine is the unified memory persistence engine: a write-through bounded
// cache over the selected backend, with TTL expiry and a periodic garbage
// collection sweep. All operations serialize on one mutex, so per-key write
// order is total and the cache never diverges from the backend.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	backend  Backend
	cache    *BoundedCache
	observer observability.Observer
	fallback bool
	closed   bool

	gcCancel context.CancelFunc
	gcWG     sync.WaitGroup
}

// NewEngine creates an Engine from configuration. Zero config fields take
// package defaults. When the durable backend cannot be opened the engine
// starts on the in-memory fallback instead of failing; UsingFallback reports
// which one is live.
func NewEngine(cfg *Config, opts ...Option) (*Engine, error) {
	resolved := DefaultConfig()
	if cfg != nil {
		resolved.Merge(cfg)
	}
	if err := resolved.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      resolved,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.backend == nil {
		backend, durable := SelectBackend(resolved, e.observer)
		e.backend = backend
		e.fallback = !durable
	}
	e.cache = NewBoundedCache(resolved.CacheMaxEntries, resolved.CacheMaxBytes)

	if resolved.CleanupInterval > 0 {
		gcCtx, cancel := context.WithCancel(context.Background())
		e.gcCancel = cancel
		e.gcWG.Add(1)
		go e.gcLoop(gcCtx, resolved.CleanupInterval)
	}
	return e, nil
}

// Store upserts value under key. The returned entry is the canonical stored
// record including the backend-assigned ID and lifecycle timestamps.
func (e *Engine) Store(ctx context.Context, key string, value Value, opts StoreOptions) (*Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if value.IsZero() {
		return nil, ErrEmptyValue
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	entry := &Entry{
		Key:        key,
		Namespace:  orDefaultNamespace(opts.Namespace),
		Value:      value,
		Metadata:   opts.Metadata,
		Tags:       opts.Tags,
		TTL:        opts.TTL,
		Compressed: value.Size() > e.cfg.CompressionThreshold,
	}

	stored, err := e.backend.Store(ctx, entry)
	if err != nil {
		return nil, err
	}

	e.cache.Put(stored.CompositeKey(), stored, stored.Size)

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "memory.Store",
		Data: map[string]any{
			"key":       stored.Key,
			"namespace": stored.Namespace,
			"size":      stored.Size,
			"ttl":       stored.TTL.String(),
		},
	})
	return stored.Clone(), nil
}

// Retrieve returns the entry stored under key, or nil when it is absent or
// expired. A cache hit skips the backend's access bookkeeping; the cache
// tracks recency on its own, trading exact counters for read speed.
func (e *Engine) Retrieve(ctx context.Context, key string, opts RetrieveOptions) (*Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	namespace := orDefaultNamespace(opts.Namespace)
	composite := CompositeKey(namespace, key)

	if cached, ok := e.cache.Get(composite); ok {
		if !cached.Expired(time.Now()) {
			return cached.Clone(), nil
		}
		e.cache.Remove(composite)
	}

	entry, err := e.backend.Retrieve(ctx, namespace, key)
	if err != nil || entry == nil {
		return nil, err
	}
	e.cache.Put(composite, entry, entry.Size)
	return entry.Clone(), nil
}

// List returns the namespace's live entries ordered by most recent access.
func (e *Engine) List(ctx context.Context, opts ListOptions) ([]*Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.backend.List(ctx, orDefaultNamespace(opts.Namespace), resolveLimit(opts.Limit))
}

// Delete removes the entry from the backend and the cache. The boolean
// reports whether a live or expired record existed.
func (e *Engine) Delete(ctx context.Context, key string, opts DeleteOptions) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrClosed
	}

	namespace := orDefaultNamespace(opts.Namespace)
	deleted, err := e.backend.Delete(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	e.cache.Remove(CompositeKey(namespace, key))

	if deleted {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventDeleted,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "memory.Delete",
			Data:      map[string]any{"key": key, "namespace": namespace},
		})
	}
	return deleted, nil
}

// Search returns the namespace's live entries whose key or serialized value
// contains pattern, most frequently accessed first.
func (e *Engine) Search(ctx context.Context, pattern string, opts SearchOptions) ([]*Entry, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.backend.Search(ctx, orDefaultNamespace(opts.Namespace), pattern, resolveLimit(opts.Limit))
}

// Cleanup eagerly deletes every expired entry and returns the count removed.
// The background sweep calls this on each tick; it is also safe to invoke
// directly.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	return e.cleanupLocked(ctx)
}

func (e *Engine) cleanupLocked(ctx context.Context) (int64, error) {
	removed, err := e.backend.Cleanup(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventCleanup,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "memory.Cleanup",
			Data:      map[string]any{"removed": removed, "backend": e.backend.Name()},
		})
	}
	return removed, nil
}

// Stats merges backend statistics with cache counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Stats{}, ErrClosed
	}

	backendStats, err := e.backend.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Backend:    backendStats.Backend,
		Fallback:   e.fallback,
		Entries:    backendStats.Entries,
		Bytes:      backendStats.Bytes,
		Namespaces: backendStats.Namespaces,
		Cache:      e.cache.Stats(),
	}, nil
}

// Backup writes a JSON snapshot of every namespace's live entries to path.
// The file lands atomically via a temp file in the target directory, so a
// crashed backup never leaves a truncated snapshot behind.
func (e *Engine) Backup(ctx context.Context, path string) (BackupInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return BackupInfo{}, ErrClosed
	}

	namespaces, err := e.backend.Namespaces(ctx)
	if err != nil {
		return BackupInfo{}, err
	}

	doc := backupDocument{
		Version:    backupVersion,
		CreatedAt:  time.Now(),
		Backend:    e.backend.Name(),
		Namespaces: make(map[string][]*Entry, len(namespaces)),
	}
	var total int64
	for _, ns := range namespaces {
		entries, err := e.backend.List(ctx, ns, 0)
		if err != nil {
			return BackupInfo{}, err
		}
		doc.Namespaces[ns] = entries
		total += int64(len(entries))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return BackupInfo{}, err
	}

	info := BackupInfo{
		Path:       path,
		Entries:    total,
		Namespaces: len(namespaces),
		CreatedAt:  doc.CreatedAt,
	}
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventBackup,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "memory.Backup",
		Data: map[string]any{
			"path":       path,
			"entries":    total,
			"namespaces": len(namespaces),
		},
	})
	return info, nil
}

// UsingFallback reports whether backend selection fell back to the
// in-memory store.
func (e *Engine) UsingFallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

// Backend returns the live backend's name.
func (e *Engine) Backend() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Name()
}

// Close stops the garbage collection sweep, optimizes and releases the
// backend, and clears the cache. Operations after Close fail with ErrClosed.
// Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.gcCancel != nil {
		e.gcCancel()
	}
	e.gcWG.Wait()

	ctx := context.Background()
	if err := e.backend.Optimize(ctx); err != nil {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventError,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "memory.Close",
			Data:      map[string]any{"op": "optimize", "error": err.Error()},
		})
	}
	err := e.backend.Close()
	e.cache.Clear()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventClosed,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "memory.Close",
		Data:      map[string]any{"backend": e.backend.Name()},
	})
	return err
}

// gcLoop sweeps expired entries every interval until cancelled.
func (e *Engine) gcLoop(ctx context.Context, interval time.Duration) {
	defer e.gcWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			_, err := e.cleanupLocked(ctx)
			e.mu.Unlock()
			if err != nil {
				e.observer.OnEvent(ctx, observability.Event{
					Type:      EventError,
					Level:     observability.LevelError,
					Timestamp: time.Now(),
					Source:    "memory.Cleanup",
					Data:      map[string]any{"op": "cleanup", "error": err.Error()},
				})
			}
		}
	}
}

func orDefaultNamespace(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}

// resolveLimit maps the option-level limit onto the backend contract, where
// non-positive means unbounded.
func resolveLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 0:
		return 0
	default:
		return limit
	}
}

// writeFileAtomic writes data to path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write backup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write backup file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write backup file: %w", err)
	}
	return nil
}
