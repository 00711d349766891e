package swarm

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

// successRateSmoothing weights each new outcome against the running success
// rate, so one result nudges the rate rather than rewriting it.
const successRateSmoothing = 0.1

// StorePattern upserts a learned pattern, filling defaults for missing ID
// and timestamps. Every pattern is persisted and mirrored; the confidence
// floor only filters which patterns survive a restart.
func (m *Memory) StorePattern(ctx context.Context, pattern *LearnedPattern) (*LearnedPattern, error) {
	if pattern == nil {
		return nil, fmt.Errorf("%w: pattern", ErrNilRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storePatternLocked(ctx, pattern)
}

func (m *Memory) storePatternLocked(ctx context.Context, pattern *LearnedPattern) (*LearnedPattern, error) {
	record := pattern.Clone()
	now := time.Now()
	if record.ID == "" {
		record.ID = NewPatternID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	value, err := memory.StructuredValue(record)
	if err != nil {
		return nil, err
	}

	tags := []string{"pattern"}
	if record.Type != "" {
		tags = append(tags, "type:"+record.Type)
	}
	if _, err := m.engine.Store(ctx, record.ID, value, memory.StoreOptions{
		Namespace: NamespacePatterns,
		Tags:      tags,
	}); err != nil {
		return nil, err
	}

	m.patterns[record.ID] = record

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventPatternStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.StorePattern",
		Data: map[string]any{
			"pattern_id": record.ID,
			"type":       record.Type,
			"confidence": record.Confidence,
		},
	})
	return record.Clone(), nil
}

// GetPattern returns the pattern by ID, reading through to storage when it
// is not mirrored in memory. Returns ErrPatternNotFound when no record
// exists.
func (m *Memory) GetPattern(ctx context.Context, id string) (*LearnedPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPatternLocked(ctx, id)
}

func (m *Memory) getPatternLocked(ctx context.Context, id string) (*LearnedPattern, error) {
	if record, ok := m.patterns[id]; ok {
		return record.Clone(), nil
	}

	entry, err := m.engine.Retrieve(ctx, id, memory.RetrieveOptions{Namespace: NamespacePatterns})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}

	var record LearnedPattern
	if err := entry.Value.Decode(&record); err != nil {
		return nil, err
	}
	m.patterns[record.ID] = &record
	return record.Clone(), nil
}

// ListPatterns returns mirrored patterns, ID ascending.
func (m *Memory) ListPatterns() []*LearnedPattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*LearnedPattern, 0, len(m.patterns))
	for _, record := range m.patterns {
		records = append(records, record.Clone())
	}
	sortByID(records, func(r *LearnedPattern) string { return r.ID })
	return records
}

// UpdatePatternMetrics folds one usage outcome into the pattern: the usage
// count advances and the success rate moves toward 1 or 0 by the smoothing
// factor.
func (m *Memory) UpdatePatternMetrics(ctx context.Context, id string, success bool) (*LearnedPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.getPatternLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	record.UsageCount++
	record.SuccessRate = successRateSmoothing*outcome + (1-successRateSmoothing)*record.SuccessRate
	return m.storePatternLocked(ctx, record)
}

// FindBestPatterns returns up to limit mirrored patterns whose type contains
// match, best scoring first. An empty match considers every pattern; a
// non-positive limit returns all matches.
func (m *Memory) FindBestPatterns(match string, limit int) []*LearnedPattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*LearnedPattern, 0, len(m.patterns))
	for _, record := range m.patterns {
		if match != "" && !strings.Contains(record.Type, match) {
			continue
		}
		records = append(records, record.Clone())
	}
	slices.SortFunc(records, func(a, b *LearnedPattern) int {
		if c := cmp.Compare(patternScore(b), patternScore(a)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// patternScore ranks patterns for selection. Demonstrated success dominates,
// stated confidence refines, and any real usage earns a small bonus over
// untried patterns.
func patternScore(p *LearnedPattern) float64 {
	score := 0.7*p.SuccessRate + 0.2*p.Confidence
	if p.UsageCount > 0 {
		score += 0.1
	}
	return score
}
