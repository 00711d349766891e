package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

// snapshotVersion is the current snapshot document format.
const snapshotVersion = 1

// Snapshot is a portable copy of the coordination records: agents, tasks,
// and learned patterns. Messages and metrics are transient and excluded.
type Snapshot struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Agents     []*AgentRecord    `json:"agents"`
	Tasks      []*TaskRecord     `json:"tasks"`
	Patterns   []*LearnedPattern `json:"patterns"`
}

// ExportState reads every agent, task, and pattern from storage into a
// snapshot. It exports from the engine rather than the mirrors, so offline
// agents and finished tasks are included. Records are ID ordered.
func (m *Memory) ExportState(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{
		Version:    snapshotVersion,
		ExportedAt: time.Now(),
	}

	agentEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceAgents, Limit: -1})
	if err != nil {
		return nil, err
	}
	for _, entry := range agentEntries {
		var record AgentRecord
		if err := entry.Value.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode agent %s: %w", entry.Key, err)
		}
		snapshot.Agents = append(snapshot.Agents, &record)
	}
	sortByID(snapshot.Agents, func(r *AgentRecord) string { return r.ID })

	taskEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceTasks, Limit: -1})
	if err != nil {
		return nil, err
	}
	for _, entry := range taskEntries {
		var record TaskRecord
		if err := entry.Value.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", entry.Key, err)
		}
		snapshot.Tasks = append(snapshot.Tasks, &record)
	}
	sortByID(snapshot.Tasks, func(r *TaskRecord) string { return r.ID })

	patternEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespacePatterns, Limit: -1})
	if err != nil {
		return nil, err
	}
	for _, entry := range patternEntries {
		var record LearnedPattern
		if err := entry.Value.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode pattern %s: %w", entry.Key, err)
		}
		snapshot.Patterns = append(snapshot.Patterns, &record)
	}
	sortByID(snapshot.Patterns, func(r *LearnedPattern) string { return r.ID })

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventExport,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "swarm.ExportState",
		Data: map[string]any{
			"agents":   len(snapshot.Agents),
			"tasks":    len(snapshot.Tasks),
			"patterns": len(snapshot.Patterns),
		},
	})
	return snapshot, nil
}

// ImportState stores every record in the snapshot through the normal upsert
// paths, replacing same-ID records and leaving everything else in place.
// Creation timestamps and statuses survive; update timestamps move to the
// import time.
func (m *Memory) ImportState(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot", ErrNilRecord)
	}
	if snapshot.Version > snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range snapshot.Agents {
		if record == nil {
			continue
		}
		if _, err := m.storeAgentLocked(ctx, record); err != nil {
			return fmt.Errorf("import agent %s: %w", record.ID, err)
		}
	}
	for _, record := range snapshot.Tasks {
		if record == nil {
			continue
		}
		if _, err := m.storeTaskLocked(ctx, record); err != nil {
			return fmt.Errorf("import task %s: %w", record.ID, err)
		}
	}
	for _, record := range snapshot.Patterns {
		if record == nil {
			continue
		}
		if _, err := m.storePatternLocked(ctx, record); err != nil {
			return fmt.Errorf("import pattern %s: %w", record.ID, err)
		}
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventImport,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "swarm.ImportState",
		Data: map[string]any{
			"agents":   len(snapshot.Agents),
			"tasks":    len(snapshot.Tasks),
			"patterns": len(snapshot.Patterns),
		},
	})
	return nil
}
