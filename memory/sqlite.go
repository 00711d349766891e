package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// migration is one versioned schema step. Versions are strictly increasing;
// applied versions are recorded in the migrations table and never re-run.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "memory entries table and lookup indexes",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS memory_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key TEXT NOT NULL,
				namespace TEXT NOT NULL DEFAULT 'default',
				value TEXT NOT NULL,
				kind TEXT NOT NULL DEFAULT 'string',
				metadata TEXT,
				tags TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				accessed_at INTEGER NOT NULL,
				access_count INTEGER NOT NULL DEFAULT 0,
				ttl INTEGER,
				expires_at INTEGER,
				size INTEGER NOT NULL DEFAULT 0,
				compressed INTEGER NOT NULL DEFAULT 0,
				UNIQUE(key, namespace)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memory_namespace ON memory_entries(namespace)`,
			`CREATE INDEX IF NOT EXISTS idx_memory_expires ON memory_entries(expires_at) WHERE expires_at IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_memory_accessed ON memory_entries(accessed_at)`,
		},
	},
	{
		version:     2,
		description: "retention scan index",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_memory_namespace_updated ON memory_entries(namespace, updated_at)`,
		},
	},
}

// DurableStore persists entries in a single-file SQLite database. It is the
// preferred backend; SelectBackend falls back to a VolatileStore when the
// file cannot be opened or migrated.
type DurableStore struct {
	db   *sql.DB
	path string
}

var _ Backend = (*DurableStore)(nil)

// NewDurableStore opens or creates the database at dir/filename and applies
// pending schema migrations.
func NewDurableStore(dir, filename string) (*DurableStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	path := filepath.Join(dir, filename)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One shared connection avoids SQLite writer lock contention under
	// concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DurableStore{db: db, path: path}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DurableStore) init() error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA temp_store=MEMORY`,
		`PRAGMA busy_timeout=5000`,
		// LIKE defaults to ASCII case-insensitive; search promises exact
		// substring matching, same as the in-memory backend.
		`PRAGMA case_sensitive_like=ON`,
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migrations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.version, m.description, err)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO migrations(version, description, applied_at) VALUES(?, ?, ?)`,
			m.version, m.description, time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// Name implements Backend.
func (s *DurableStore) Name() string { return "sqlite" }

// Path returns the database file location.
func (s *DurableStore) Path() string { return s.path }

// Store implements Backend. The upsert keys on (namespace, key): a conflict
// replaces the payload and lifecycle columns, preserves created_at, and
// increments access_count.
func (s *DurableStore) Store(ctx context.Context, entry *Entry) (*Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	now := time.Now()
	ttl, expires := expiryColumns(entry.TTL, now)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory_entries(key, namespace, value, kind, metadata, tags, created_at, updated_at, accessed_at, access_count, ttl, expires_at, size, compressed)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
ON CONFLICT(key, namespace) DO UPDATE SET
	value = excluded.value,
	kind = excluded.kind,
	metadata = excluded.metadata,
	tags = excluded.tags,
	updated_at = excluded.updated_at,
	accessed_at = excluded.accessed_at,
	access_count = memory_entries.access_count + 1,
	ttl = excluded.ttl,
	expires_at = excluded.expires_at,
	size = excluded.size,
	compressed = excluded.compressed`,
		entry.Key, entry.Namespace, entry.Value.Text(), string(entry.Value.Kind()),
		encodeMetadata(entry.Metadata), encodeTags(entry.Tags),
		now.UnixMilli(), now.UnixMilli(), now.UnixMilli(),
		ttl, expires, entry.Value.Size(), boolColumn(entry.Compressed))
	if err != nil {
		return nil, fmt.Errorf("store entry: %w", err)
	}

	return s.readEntry(ctx, entry.Namespace, entry.Key)
}

// Retrieve implements Backend with lazy expiry: an expired row is deleted on
// observation and reported as absent.
func (s *DurableStore) Retrieve(ctx context.Context, namespace, key string) (*Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	entry, err := s.readEntry(ctx, namespace, key)
	if err != nil || entry == nil {
		return nil, err
	}

	now := time.Now()
	if entry.Expired(now) {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM memory_entries WHERE namespace = ? AND key = ?`,
			namespace, key,
		); err != nil {
			return nil, fmt.Errorf("expire entry: %w", err)
		}
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `
UPDATE memory_entries SET accessed_at = ?, access_count = access_count + 1
WHERE namespace = ? AND key = ?`,
		now.UnixMilli(), namespace, key,
	); err != nil {
		return nil, fmt.Errorf("touch entry: %w", err)
	}
	entry.AccessedAt = now
	entry.AccessCount++
	return entry, nil
}

// List implements Backend.
func (s *DurableStore) List(ctx context.Context, namespace string, limit int) ([]*Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded.
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM memory_entries
WHERE namespace = ?
AND (expires_at IS NULL OR expires_at > ?)
ORDER BY accessed_at DESC, id DESC
LIMIT ?`, namespace, time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Delete implements Backend.
func (s *DurableStore) Delete(ctx context.Context, namespace, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrNotInitialized
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Search implements Backend. Pattern is a literal substring; LIKE wildcards
// in it are escaped so both backends match identically.
func (s *DurableStore) Search(ctx context.Context, namespace, pattern string, limit int) ([]*Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1
	}

	like := likePattern(pattern)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM memory_entries
WHERE namespace = ?
AND (expires_at IS NULL OR expires_at > ?)
AND (key LIKE ? ESCAPE '\' OR value LIKE ? ESCAPE '\')
ORDER BY access_count DESC, updated_at DESC, id DESC
LIMIT ?`, namespace, time.Now().UnixMilli(), like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Cleanup implements Backend with an eager sweep of expired rows.
func (s *DurableStore) Cleanup(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Namespaces implements Backend.
func (s *DurableStore) Namespaces(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT namespace FROM memory_entries
WHERE expires_at IS NULL OR expires_at > ?
ORDER BY namespace`, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	return namespaces, nil
}

// Stats implements Backend over live (unexpired) rows.
func (s *DurableStore) Stats(ctx context.Context) (BackendStats, error) {
	if s == nil || s.db == nil {
		return BackendStats{}, ErrNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT namespace, COUNT(*), COALESCE(SUM(size), 0)
FROM memory_entries
WHERE expires_at IS NULL OR expires_at > ?
GROUP BY namespace`, time.Now().UnixMilli())
	if err != nil {
		return BackendStats{}, fmt.Errorf("read stats: %w", err)
	}
	defer rows.Close()

	stats := BackendStats{Backend: s.Name(), Namespaces: make(map[string]NamespaceStats)}
	for rows.Next() {
		var ns string
		var nsStats NamespaceStats
		if err := rows.Scan(&ns, &nsStats.Entries, &nsStats.Bytes); err != nil {
			return BackendStats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.Namespaces[ns] = nsStats
		stats.Entries += nsStats.Entries
		stats.Bytes += nsStats.Bytes
	}
	if err := rows.Err(); err != nil {
		return BackendStats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Optimize implements Backend by asking SQLite to refresh its query planner
// statistics and checkpoint the WAL.
func (s *DurableStore) Optimize(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimize database: %w", err)
	}
	return nil
}

// Close implements Backend. The handle is released exactly once; subsequent
// operations fail with ErrNotInitialized.
func (s *DurableStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}

const entryColumns = `id, key, namespace, value, kind, metadata, tags, created_at, updated_at, accessed_at, access_count, ttl, expires_at, size, compressed`

// readEntry fetches a row without touching access bookkeeping. Returns nil
// when the row does not exist.
func (s *DurableStore) readEntry(ctx context.Context, namespace, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM memory_entries
WHERE namespace = ? AND key = ?`, namespace, key)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry      Entry
		value      string
		kind       string
		metadata   sql.NullString
		tags       sql.NullString
		createdMS  int64
		updatedMS  int64
		accessedMS int64
		ttlMS      sql.NullInt64
		expiresMS  sql.NullInt64
		compressed int
	)
	if err := row.Scan(
		&entry.ID, &entry.Key, &entry.Namespace, &value, &kind,
		&metadata, &tags, &createdMS, &updatedMS, &accessedMS,
		&entry.AccessCount, &ttlMS, &expiresMS, &entry.Size, &compressed,
	); err != nil {
		return nil, err
	}

	entry.Value = RawValue(ValueKind(kind), []byte(value))
	entry.Metadata = decodeMetadata(metadata.String)
	entry.Tags = decodeTags(tags.String)
	entry.CreatedAt = time.UnixMilli(createdMS)
	entry.UpdatedAt = time.UnixMilli(updatedMS)
	entry.AccessedAt = time.UnixMilli(accessedMS)
	if ttlMS.Valid {
		entry.TTL = time.Duration(ttlMS.Int64) * time.Millisecond
	}
	if expiresMS.Valid {
		entry.ExpiresAt = time.UnixMilli(expiresMS.Int64)
	}
	entry.Compressed = compressed != 0
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// expiryColumns derives the nullable ttl/expires_at pair. Both are null when
// no TTL is set, keeping the invariant that one implies the other.
func expiryColumns(ttl time.Duration, now time.Time) (sql.NullInt64, sql.NullInt64) {
	if ttl <= 0 {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ttl.Milliseconds(), Valid: true},
		sql.NullInt64{Int64: now.Add(ttl).UnixMilli(), Valid: true}
}

func boolColumn(b bool) int {
	if b {
		return 1
	}
	return 0
}

// likePattern escapes LIKE wildcards so pattern matches as a literal
// substring, mirroring the volatile store's strings.Contains semantics.
func likePattern(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(pattern) + "%"
}

func encodeMetadata(m map[string]string) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// encodeTags serializes normalized tags as a JSON array.
func encodeTags(tags []string) sql.NullString {
	out := normalizeTags(tags)
	if len(out) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
