package swarm

import (
	"context"
	"errors"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

// CleanupOptions bounds a retention sweep. A zero MaxAge uses
// DefaultCleanupMaxAge.
type CleanupOptions struct {
	MaxAge time.Duration
}

// CleanupReport counts what a sweep removed, by category.
type CleanupReport struct {
	Messages int64 `json:"messages"`
	Tasks    int64 `json:"tasks"`
	Metrics  int64 `json:"metrics"`
	Expired  int64 `json:"expired"`
}

// Total returns the number of entries removed across all categories.
func (r CleanupReport) Total() int64 {
	return r.Messages + r.Tasks + r.Metrics + r.Expired
}

// CleanupSwarmData removes coordination records older than the retention
// window: stale messages, finished tasks, and old metric samples, plus
// whatever TTL expiry the engine sweeps up. Unfinished tasks are never
// removed regardless of age. Sweeps run independently, so one failing
// category does not stop the others; errors are joined.
func (m *Memory) CleanupSwarmData(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCleanupMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	var report CleanupReport
	var errs []error

	removed, err := m.sweepMessagesLocked(ctx, cutoff)
	report.Messages = removed
	if err != nil {
		errs = append(errs, err)
	}

	removed, err = m.sweepTasksLocked(ctx, cutoff)
	report.Tasks = removed
	if err != nil {
		errs = append(errs, err)
	}

	removed, err = m.sweepMetricsLocked(ctx, cutoff)
	report.Metrics = removed
	if err != nil {
		errs = append(errs, err)
	}

	expired, err := m.engine.Cleanup(ctx)
	report.Expired = expired
	if err != nil {
		errs = append(errs, err)
	}

	if report.Total() > 0 {
		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventCleanup,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "swarm.CleanupSwarmData",
			Data: map[string]any{
				"messages": report.Messages,
				"tasks":    report.Tasks,
				"metrics":  report.Metrics,
				"expired":  report.Expired,
				"max_age":  maxAge.String(),
			},
		})
	}
	return report, errors.Join(errs...)
}

func (m *Memory) sweepMessagesLocked(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceCommunications, Limit: -1})
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, entry := range entries {
		var record Message
		if err := entry.Value.Decode(&record); err != nil {
			continue
		}
		if !record.SentAt.Before(cutoff) {
			continue
		}
		deleted, err := m.engine.Delete(ctx, entry.Key, memory.DeleteOptions{Namespace: NamespaceCommunications})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) sweepTasksLocked(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceTasks, Limit: -1})
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, entry := range entries {
		var record TaskRecord
		if err := entry.Value.Decode(&record); err != nil {
			continue
		}
		if !record.Status.Terminal() || !record.UpdatedAt.Before(cutoff) {
			continue
		}
		deleted, err := m.engine.Delete(ctx, entry.Key, memory.DeleteOptions{Namespace: NamespaceTasks})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
			delete(m.tasks, record.ID)
		}
	}
	return removed, nil
}

func (m *Memory) sweepMetricsLocked(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceMetrics, Limit: -1})
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, entry := range entries {
		var sample MetricSample
		if err := entry.Value.Decode(&sample); err != nil {
			continue
		}
		if !sample.RecordedAt.Before(cutoff) {
			continue
		}
		deleted, err := m.engine.Delete(ctx, entry.Key, memory.DeleteOptions{Namespace: NamespaceMetrics})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}
