package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

// eventRecorder captures observer events for assertions. Safe for use from
// the engine's background sweep.
type eventRecorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func newEventRecorder() *eventRecorder { return &eventRecorder{} }

func (r *eventRecorder) OnEvent(_ context.Context, event observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Events() []observability.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *eventRecorder) ByType(eventType observability.EventType) []observability.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []observability.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func newTestEngine(t *testing.T, cfg *memory.Config, opts ...memory.Option) *memory.Engine {
	t.Helper()
	resolved := memory.Config{Directory: t.TempDir(), CleanupInterval: -1}
	if cfg != nil {
		resolved = *cfg
		if resolved.Directory == "" {
			resolved.Directory = t.TempDir()
		}
	}
	engine, err := memory.NewEngine(&resolved, opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngine_StoreRetrieveRoundTrip(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	stored, err := engine.Store(ctx, "greeting", memory.StringValue("hello"), memory.StoreOptions{})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if stored.Namespace != memory.DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", stored.Namespace, memory.DefaultNamespace)
	}

	entry, err := engine.Retrieve(ctx, "greeting", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Retrieve() = nil, want stored entry")
	}
	if entry.Value.Text() != "hello" {
		t.Errorf("Value = %q, want %q", entry.Value.Text(), "hello")
	}
}

func TestEngine_StructuredRoundTrip(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	type plan struct {
		Steps []string `json:"steps"`
		Owner string   `json:"owner"`
	}
	value, err := memory.StructuredValue(plan{Steps: []string{"scan", "build"}, Owner: "coordinator"})
	if err != nil {
		t.Fatalf("StructuredValue() error = %v", err)
	}

	if _, err := engine.Store(ctx, "plan", value, memory.StoreOptions{Namespace: "coordination"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	entry, err := engine.Retrieve(ctx, "plan", memory.RetrieveOptions{Namespace: "coordination"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Retrieve() = nil, want entry")
	}

	var decoded plan
	if err := entry.Value.Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Owner != "coordinator" || len(decoded.Steps) != 2 {
		t.Errorf("Decode() = %+v, want original plan", decoded)
	}
}

func TestEngine_ValidationErrors(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "", memory.StringValue("v"), memory.StoreOptions{}); !errors.Is(err, memory.ErrEmptyKey) {
		t.Errorf("Store(empty key) error = %v, want ErrEmptyKey", err)
	}
	var zero memory.Value
	if _, err := engine.Store(ctx, "k", zero, memory.StoreOptions{}); !errors.Is(err, memory.ErrEmptyValue) {
		t.Errorf("Store(zero value) error = %v, want ErrEmptyValue", err)
	}
	if _, err := engine.Retrieve(ctx, "", memory.RetrieveOptions{}); !errors.Is(err, memory.ErrEmptyKey) {
		t.Errorf("Retrieve(empty key) error = %v, want ErrEmptyKey", err)
	}
	if _, err := engine.Delete(ctx, "", memory.DeleteOptions{}); !errors.Is(err, memory.ErrEmptyKey) {
		t.Errorf("Delete(empty key) error = %v, want ErrEmptyKey", err)
	}
	if _, err := engine.Search(ctx, "", memory.SearchOptions{}); !errors.Is(err, memory.ErrEmptyPattern) {
		t.Errorf("Search(empty pattern) error = %v, want ErrEmptyPattern", err)
	}
}

func TestEngine_CacheHitSkipsBackendBookkeeping(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "hot", memory.StringValue("v"), memory.StoreOptions{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		entry, err := engine.Retrieve(ctx, "hot", memory.RetrieveOptions{})
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if entry == nil {
			t.Fatal("Retrieve() = nil, want cached entry")
		}
	}

	// List reads the backend directly: the cached reads must not have bumped
	// the persistent access counter.
	entries, err := engine.List(ctx, memory.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}
	if entries[0].AccessCount != 0 {
		t.Errorf("backend AccessCount = %d, want 0 after cache-served reads", entries[0].AccessCount)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Cache.Hits != 2 {
		t.Errorf("cache hits = %d, want 2", stats.Cache.Hits)
	}
}

func TestEngine_CacheMissReadsBackend(t *testing.T) {
	backend := memory.NewVolatileStore()
	first := newTestEngine(t, nil, memory.WithBackend(backend))
	second := newTestEngine(t, nil, memory.WithBackend(backend))
	ctx := context.Background()

	if _, err := first.Store(ctx, "shared", memory.StringValue("v"), memory.StoreOptions{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	// The second engine's cache is cold, so the read goes to the backend and
	// bumps the persistent counter.
	entry, err := second.Retrieve(ctx, "shared", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Retrieve() = nil, want shared entry")
	}
	if entry.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 after backend read", entry.AccessCount)
	}

	stats, err := second.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Cache.Misses != 1 {
		t.Errorf("cache misses = %d, want 1", stats.Cache.Misses)
	}
}

func TestEngine_ExpiredCacheHitFallsThrough(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "ephemeral", memory.StringValue("v"), memory.StoreOptions{TTL: 15 * time.Millisecond}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	entry, err := engine.Retrieve(ctx, "ephemeral", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Retrieve() = nil, want live entry before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	entry, err = engine.Retrieve(ctx, "ephemeral", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() after expiry error = %v", err)
	}
	if entry != nil {
		t.Errorf("Retrieve() after expiry = %+v, want nil", entry)
	}
}

func TestEngine_DeleteRemovesEverywhere(t *testing.T) {
	rec := newEventRecorder()
	engine := newTestEngine(t, nil, memory.WithObserver(rec))
	ctx := context.Background()

	if _, err := engine.Store(ctx, "doomed", memory.StringValue("v"), memory.StoreOptions{Namespace: "tasks"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	deleted, err := engine.Delete(ctx, "doomed", memory.DeleteOptions{Namespace: "tasks"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true")
	}

	entry, err := engine.Retrieve(ctx, "doomed", memory.RetrieveOptions{Namespace: "tasks"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if entry != nil {
		t.Errorf("Retrieve(deleted) = %+v, want nil", entry)
	}

	if events := rec.ByType(memory.EventDeleted); len(events) != 1 {
		t.Errorf("recorded %d deleted events, want 1", len(events))
	}

	deleted, err = engine.Delete(ctx, "doomed", memory.DeleteOptions{Namespace: "tasks"})
	if err != nil {
		t.Fatalf("Delete() second call error = %v", err)
	}
	if deleted {
		t.Error("Delete() second call = true, want false")
	}
	if events := rec.ByType(memory.EventDeleted); len(events) != 1 {
		t.Errorf("recorded %d deleted events after no-op delete, want still 1", len(events))
	}
}

func TestEngine_NamespaceIsolation(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "status", memory.StringValue("busy"), memory.StoreOptions{Namespace: "agents"}); err != nil {
		t.Fatalf("Store(agents) error = %v", err)
	}
	if _, err := engine.Store(ctx, "status", memory.StringValue("pending"), memory.StoreOptions{Namespace: "tasks"}); err != nil {
		t.Fatalf("Store(tasks) error = %v", err)
	}

	agentEntry, err := engine.Retrieve(ctx, "status", memory.RetrieveOptions{Namespace: "agents"})
	if err != nil {
		t.Fatalf("Retrieve(agents) error = %v", err)
	}
	if agentEntry == nil || agentEntry.Value.Text() != "busy" {
		t.Fatalf("Retrieve(agents) = %+v, want Value %q", agentEntry, "busy")
	}

	taskEntry, err := engine.Retrieve(ctx, "status", memory.RetrieveOptions{Namespace: "tasks"})
	if err != nil {
		t.Fatalf("Retrieve(tasks) error = %v", err)
	}
	if taskEntry == nil || taskEntry.Value.Text() != "pending" {
		t.Fatalf("Retrieve(tasks) = %+v, want Value %q", taskEntry, "pending")
	}

	// Two hits: the write-through cache keys by namespace as well as key,
	// so the second store must not have clobbered the first.
	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Cache.Hits != 2 {
		t.Errorf("cache hits = %d, want 2", stats.Cache.Hits)
	}

	deleted, err := engine.Delete(ctx, "status", memory.DeleteOptions{Namespace: "agents"})
	if err != nil {
		t.Fatalf("Delete(agents) error = %v", err)
	}
	if !deleted {
		t.Error("Delete(agents) = false, want true")
	}

	gone, err := engine.Retrieve(ctx, "status", memory.RetrieveOptions{Namespace: "agents"})
	if err != nil {
		t.Fatalf("Retrieve(agents) after delete error = %v", err)
	}
	if gone != nil {
		t.Errorf("Retrieve(agents) after delete = %+v, want nil", gone)
	}

	kept, err := engine.Retrieve(ctx, "status", memory.RetrieveOptions{Namespace: "tasks"})
	if err != nil {
		t.Fatalf("Retrieve(tasks) after delete error = %v", err)
	}
	if kept == nil || kept.Value.Text() != "pending" {
		t.Fatalf("Retrieve(tasks) after delete = %+v, want Value %q", kept, "pending")
	}

	// The kept read is the third hit: deleting the agents entry must not
	// evict the tasks entry from the cache.
	stats, err = engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Cache.Hits != 3 {
		t.Errorf("cache hits = %d, want 3", stats.Cache.Hits)
	}
}

func TestEngine_ListAndSearchLimits(t *testing.T) {
	engine := newTestEngine(t, nil, memory.WithBackend(memory.NewVolatileStore()))
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		key := fmt.Sprintf("entry-%03d", i)
		if _, err := engine.Store(ctx, key, memory.StringValue("payload"), memory.StoreOptions{}); err != nil {
			t.Fatalf("Store(%s) error = %v", key, err)
		}
	}

	defaulted, err := engine.List(ctx, memory.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(defaulted) != memory.DefaultListLimit {
		t.Errorf("List(limit=0) returned %d entries, want %d", len(defaulted), memory.DefaultListLimit)
	}

	unbounded, err := engine.List(ctx, memory.ListOptions{Limit: -1})
	if err != nil {
		t.Fatalf("List(limit=-1) error = %v", err)
	}
	if len(unbounded) != 120 {
		t.Errorf("List(limit=-1) returned %d entries, want 120", len(unbounded))
	}

	capped, err := engine.Search(ctx, "entry-", memory.SearchOptions{Limit: 7})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(capped) != 7 {
		t.Errorf("Search(limit=7) returned %d entries, want 7", len(capped))
	}
}

func TestEngine_SearchRanksByAccessCount(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "task-alpha", memory.StringValue("x"), memory.StoreOptions{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	// Replacing twice bumps the persistent access counter to 2.
	for i := 0; i < 3; i++ {
		if _, err := engine.Store(ctx, "task-beta", memory.StringValue("x"), memory.StoreOptions{}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	results, err := engine.Search(ctx, "task-", memory.SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := keysOf(results); !slices.Equal(got, []string{"task-beta", "task-alpha"}) {
		t.Errorf("Search() = %v, want [task-beta task-alpha]", got)
	}
}

func TestEngine_CompressionFlagOverThreshold(t *testing.T) {
	cfg := &memory.Config{Directory: t.TempDir(), CompressionThreshold: 10, CleanupInterval: -1}
	engine := newTestEngine(t, cfg)
	ctx := context.Background()

	small, err := engine.Store(ctx, "small", memory.StringValue("tiny"), memory.StoreOptions{})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if small.Compressed {
		t.Error("small entry Compressed = true, want false")
	}

	large, err := engine.Store(ctx, "large", memory.StringValue("this payload exceeds ten bytes"), memory.StoreOptions{})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !large.Compressed {
		t.Error("large entry Compressed = false, want true")
	}

	entry, err := engine.Retrieve(ctx, "large", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !entry.Compressed {
		t.Error("retrieved Compressed = false, want flag persisted")
	}
}

func TestEngine_FallbackActivation(t *testing.T) {
	rec := newEventRecorder()
	cfg := &memory.Config{Directory: blockedDirectory(t), CleanupInterval: -1}
	engine, err := memory.NewEngine(cfg, memory.WithObserver(rec))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	if !engine.UsingFallback() {
		t.Error("UsingFallback() = false, want true")
	}
	if engine.Backend() != "in-memory" {
		t.Errorf("Backend() = %q, want %q", engine.Backend(), "in-memory")
	}
	if events := rec.ByType(memory.EventFallback); len(events) != 1 {
		t.Errorf("recorded %d fallback events, want 1", len(events))
	}

	// Full contract still served.
	ctx := context.Background()
	if _, err := engine.Store(ctx, "k", memory.StringValue("v"), memory.StoreOptions{}); err != nil {
		t.Fatalf("Store() on fallback error = %v", err)
	}
	entry, err := engine.Retrieve(ctx, "k", memory.RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve() on fallback error = %v", err)
	}
	if entry == nil || entry.Value.Text() != "v" {
		t.Errorf("Retrieve() on fallback = %+v, want stored entry", entry)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if !stats.Fallback {
		t.Error("Stats().Fallback = false, want true")
	}
}

func TestEngine_BackgroundCleanupSweeps(t *testing.T) {
	rec := newEventRecorder()
	cfg := &memory.Config{Directory: t.TempDir(), CleanupInterval: 20 * time.Millisecond}
	engine, err := memory.NewEngine(cfg, memory.WithObserver(rec))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	ctx := context.Background()
	if _, err := engine.Store(ctx, "ephemeral", memory.StringValue("v"), memory.StoreOptions{TTL: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.ByType(memory.EventCleanup)) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	events := rec.ByType(memory.EventCleanup)
	if len(events) == 0 {
		t.Fatal("no cleanup events recorded, want background sweep to fire")
	}
	if removed, _ := events[0].Data["removed"].(int64); removed < 1 {
		t.Errorf("cleanup removed = %v, want >= 1", events[0].Data["removed"])
	}
}

func TestEngine_ManualCleanup(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "e1", memory.StringValue("v"), memory.StoreOptions{TTL: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := engine.Store(ctx, "keeper", memory.StringValue("v"), memory.StoreOptions{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	removed, err := engine.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
}

func TestEngine_StatsMergesCacheAndBackend(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Store(ctx, "k1", memory.StringValue("12345"), memory.StoreOptions{Namespace: "a"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := engine.Store(ctx, "k2", memory.StringValue("123"), memory.StoreOptions{Namespace: "b"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := engine.Retrieve(ctx, "k1", memory.RetrieveOptions{Namespace: "a"}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Backend != "sqlite" {
		t.Errorf("Stats().Backend = %q, want %q", stats.Backend, "sqlite")
	}
	if stats.Fallback {
		t.Error("Stats().Fallback = true, want false")
	}
	if stats.Entries != 2 {
		t.Errorf("Stats().Entries = %d, want 2", stats.Entries)
	}
	if stats.Bytes != 8 {
		t.Errorf("Stats().Bytes = %d, want 8", stats.Bytes)
	}
	if stats.Namespaces["a"].Entries != 1 || stats.Namespaces["b"].Entries != 1 {
		t.Errorf("Stats().Namespaces = %v, want one entry each in a and b", stats.Namespaces)
	}
	if stats.Cache.Hits != 1 {
		t.Errorf("Stats().Cache.Hits = %d, want 1", stats.Cache.Hits)
	}
}

func TestEngine_BackupSnapshot(t *testing.T) {
	rec := newEventRecorder()
	engine := newTestEngine(t, nil, memory.WithObserver(rec))
	ctx := context.Background()

	if _, err := engine.Store(ctx, "a1", memory.StringValue("v1"), memory.StoreOptions{Namespace: "agents"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := engine.Store(ctx, "a2", memory.StringValue("v2"), memory.StoreOptions{Namespace: "agents"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := engine.Store(ctx, "t1", memory.StringValue("v3"), memory.StoreOptions{Namespace: "tasks"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "backups", "snapshot.json")
	info, err := engine.Backup(ctx, path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if info.Entries != 3 {
		t.Errorf("BackupInfo.Entries = %d, want 3", info.Entries)
	}
	if info.Namespaces != 2 {
		t.Errorf("BackupInfo.Namespaces = %d, want 2", info.Namespaces)
	}
	if info.Path != path {
		t.Errorf("BackupInfo.Path = %q, want %q", info.Path, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc struct {
		Version    int                        `json:"version"`
		Backend    string                     `json:"backend"`
		Namespaces map[string][]*memory.Entry `json:"namespaces"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("snapshot version = %d, want 1", doc.Version)
	}
	if doc.Backend != "sqlite" {
		t.Errorf("snapshot backend = %q, want %q", doc.Backend, "sqlite")
	}
	if len(doc.Namespaces["agents"]) != 2 || len(doc.Namespaces["tasks"]) != 1 {
		t.Errorf("snapshot namespaces = %d agents / %d tasks, want 2/1",
			len(doc.Namespaces["agents"]), len(doc.Namespaces["tasks"]))
	}

	if events := rec.ByType(memory.EventBackup); len(events) != 1 {
		t.Errorf("recorded %d backup events, want 1", len(events))
	}
}

func TestEngine_CloseIsIdempotentAndFinal(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("Close() twice error = %v, want nil", err)
	}

	if _, err := engine.Store(ctx, "k", memory.StringValue("v"), memory.StoreOptions{}); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Store() after Close error = %v, want ErrClosed", err)
	}
	if _, err := engine.Retrieve(ctx, "k", memory.RetrieveOptions{}); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Retrieve() after Close error = %v, want ErrClosed", err)
	}
	if _, err := engine.List(ctx, memory.ListOptions{}); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("List() after Close error = %v, want ErrClosed", err)
	}
	if _, err := engine.Cleanup(ctx); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Cleanup() after Close error = %v, want ErrClosed", err)
	}
	if _, err := engine.Stats(ctx); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Stats() after Close error = %v, want ErrClosed", err)
	}
	if _, err := engine.Backup(ctx, filepath.Join(t.TempDir(), "b.json")); !errors.Is(err, memory.ErrClosed) {
		t.Errorf("Backup() after Close error = %v, want ErrClosed", err)
	}
}

func TestEngine_ConcurrentOperations(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				key := fmt.Sprintf("worker-%d-%d", n, j%5)
				if _, err := engine.Store(ctx, key, memory.StringValue("v"), memory.StoreOptions{}); err != nil {
					t.Errorf("Store(%s) error = %v", key, err)
					return
				}
				if _, err := engine.Retrieve(ctx, key, memory.RetrieveOptions{}); err != nil {
					t.Errorf("Retrieve(%s) error = %v", key, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	entries, err := engine.List(ctx, memory.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 40 {
		t.Errorf("List() returned %d entries, want 40", len(entries))
	}
}
