package memory

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// DefaultNamespace scopes entries stored without an explicit namespace.
const DefaultNamespace = "default"

// Entry is a namespaced key-value record with lifecycle bookkeeping. Keys
// are unique within a namespace; the same key may exist independently in any
// number of namespaces.
type Entry struct {
	ID          int64             `json:"id"`
	Key         string            `json:"key"`
	Namespace   string            `json:"namespace"`
	Value       Value             `json:"value"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	AccessedAt  time.Time         `json:"accessed_at"`
	AccessCount int64             `json:"access_count"`
	TTL         time.Duration     `json:"ttl,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at,omitzero"`
	Size        int64             `json:"size"`
	Compressed  bool              `json:"compressed,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
// Entries without a TTL never expire.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}

// CompositeKey returns the namespace-qualified cache key for the entry.
func (e *Entry) CompositeKey() string {
	return CompositeKey(e.Namespace, e.Key)
}

// Clone returns an independent copy of the entry. Metadata and tags are
// copied so shared references cannot mutate stored state.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Metadata = maps.Clone(e.Metadata)
	clone.Tags = slices.Clone(e.Tags)
	return &clone
}

// CompositeKey joins a namespace and key into the canonical `namespace:key`
// cache key form.
func CompositeKey(namespace, key string) string {
	return namespace + ":" + key
}

// normalizeTags drops blank and case-insensitive duplicate tags while
// preserving first-seen order. Both backends apply it at write time so reads
// agree regardless of which backend served them.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		lower := strings.ToLower(tag)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
