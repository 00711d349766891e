// Package swarm specializes the memory engine for multi-agent coordination.
// Typed records for agents, tasks, messages, consensus rounds, and learned
// patterns live in well-known namespaces; in-process maps are rebuilt from
// storage on startup so coordination reads stay off the backend. The engine
// remains the system of record, the maps are caches.
package swarm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

// Well-known storage namespaces used by the swarm layer. Coordination is
// reserved for free-form shared state written by external consumers.
const (
	NamespaceAgents         = "agents"
	NamespaceTasks          = "tasks"
	NamespaceCommunications = "communications"
	NamespaceConsensus      = "consensus"
	NamespacePatterns       = "patterns"
	NamespaceMetrics        = "metrics"
	NamespaceCoordination   = "coordination"
)

// Option configures a Memory during New. Options are applied before the
// engine is created so construction-time events reach an injected observer.
type Option func(*Memory)

// WithObserver overrides the default NoOpObserver. The observer also
// receives the underlying engine's events.
func WithObserver(o observability.Observer) Option {
	return func(m *Memory) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithEngine injects a pre-built engine, bypassing config-driven creation.
func WithEngine(e *memory.Engine) Option {
	return func(m *Memory) {
		if e != nil {
			m.engine = e
		}
	}
}

// Memory is the swarm-facing persistence layer. One mutex serializes every
// operation that touches the record maps together with its engine write, so
// the maps never trail the backend within a process.
type Memory struct {
	mu       sync.RWMutex
	cfg      Config
	engine   *memory.Engine
	observer observability.Observer

	agents   map[string]*AgentRecord
	tasks    map[string]*TaskRecord
	patterns map[string]*LearnedPattern
}

// New creates a swarm Memory from configuration, opening (or falling back
// around) the underlying engine and seeding the in-process maps from
// storage: active agents, unfinished tasks, and patterns at or above the
// configured confidence floor.
func New(cfg *Config, opts ...Option) (*Memory, error) {
	resolved := DefaultConfig()
	if cfg != nil {
		resolved.Merge(cfg)
	}

	m := &Memory{
		cfg:      resolved,
		observer: observability.NoOpObserver{},
		agents:   make(map[string]*AgentRecord),
		tasks:    make(map[string]*TaskRecord),
		patterns: make(map[string]*LearnedPattern),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.engine == nil {
		engine, err := memory.NewEngine(&resolved.Memory, memory.WithObserver(m.observer))
		if err != nil {
			return nil, fmt.Errorf("create memory engine: %w", err)
		}
		m.engine = engine
	}

	if err := m.bootstrap(context.Background()); err != nil {
		_ = m.engine.Close()
		return nil, fmt.Errorf("bootstrap swarm state: %w", err)
	}
	return m, nil
}

// Engine exposes the underlying engine for direct namespace access.
func (m *Memory) Engine() *memory.Engine {
	return m.engine
}

// Close releases the underlying engine.
func (m *Memory) Close() error {
	return m.engine.Close()
}

func (m *Memory) bootstrap(ctx context.Context) error {
	limit := m.cfg.BootstrapLimit

	agentEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceAgents, Limit: limit})
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, entry := range agentEntries {
		var record AgentRecord
		if err := entry.Value.Decode(&record); err != nil {
			m.reportCorrupt(ctx, NamespaceAgents, entry.Key, err)
			continue
		}
		if record.ID == "" {
			record.ID = entry.Key
		}
		if record.Status == AgentActive {
			m.agents[record.ID] = &record
		}
	}

	taskEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceTasks, Limit: limit})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	for _, entry := range taskEntries {
		var record TaskRecord
		if err := entry.Value.Decode(&record); err != nil {
			m.reportCorrupt(ctx, NamespaceTasks, entry.Key, err)
			continue
		}
		if record.ID == "" {
			record.ID = entry.Key
		}
		if record.Status == TaskPending || record.Status == TaskInProgress {
			m.tasks[record.ID] = &record
		}
	}

	patternEntries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespacePatterns, Limit: limit})
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}
	for _, entry := range patternEntries {
		var record LearnedPattern
		if err := entry.Value.Decode(&record); err != nil {
			m.reportCorrupt(ctx, NamespacePatterns, entry.Key, err)
			continue
		}
		if record.ID == "" {
			record.ID = entry.Key
		}
		if record.Confidence >= m.cfg.PatternConfidence {
			m.patterns[record.ID] = &record
		}
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventBootstrap,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "swarm.New",
		Data: map[string]any{
			"agents":   len(m.agents),
			"tasks":    len(m.tasks),
			"patterns": len(m.patterns),
			"backend":  m.engine.Backend(),
		},
	})
	return nil
}

// reportCorrupt flags a row that no longer decodes as its record type.
// Bootstrap skips such rows rather than failing the whole startup.
func (m *Memory) reportCorrupt(ctx context.Context, namespace, key string, err error) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventBootstrap,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "swarm.New",
		Data:      map[string]any{"namespace": namespace, "key": key, "error": err.Error()},
	})
}

// StoreAgent upserts an agent record, filling defaults for missing ID,
// status, and timestamps. The returned record is the canonical stored form.
func (m *Memory) StoreAgent(ctx context.Context, agent *AgentRecord) (*AgentRecord, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: agent", ErrNilRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeAgentLocked(ctx, agent)
}

func (m *Memory) storeAgentLocked(ctx context.Context, agent *AgentRecord) (*AgentRecord, error) {
	record := agent.Clone()
	now := time.Now()
	if record.ID == "" {
		record.ID = NewAgentID()
	}
	if record.Status == "" {
		record.Status = AgentActive
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	value, err := memory.StructuredValue(record)
	if err != nil {
		return nil, err
	}

	tags := []string{"agent", "status:" + string(record.Status)}
	if record.Type != "" {
		tags = append(tags, "type:"+record.Type)
	}
	if _, err := m.engine.Store(ctx, record.ID, value, memory.StoreOptions{
		Namespace: NamespaceAgents,
		Tags:      tags,
	}); err != nil {
		return nil, err
	}

	m.agents[record.ID] = record

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventAgentStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.StoreAgent",
		Data: map[string]any{
			"agent_id": record.ID,
			"type":     record.Type,
			"status":   string(record.Status),
		},
	})
	return record.Clone(), nil
}

// GetAgent returns the agent by ID, reading through to storage when it is
// not mirrored in memory. Returns ErrAgentNotFound when no record exists.
func (m *Memory) GetAgent(ctx context.Context, id string) (*AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAgentLocked(ctx, id)
}

func (m *Memory) getAgentLocked(ctx context.Context, id string) (*AgentRecord, error) {
	if record, ok := m.agents[id]; ok {
		return record.Clone(), nil
	}

	entry, err := m.engine.Retrieve(ctx, id, memory.RetrieveOptions{Namespace: NamespaceAgents})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	var record AgentRecord
	if err := entry.Value.Decode(&record); err != nil {
		return nil, err
	}
	m.agents[record.ID] = &record
	return record.Clone(), nil
}

// ListAgents returns mirrored agents filtered by status, ID ascending.
// An empty status matches all.
func (m *Memory) ListAgents(status AgentStatus) []*AgentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*AgentRecord, 0, len(m.agents))
	for _, record := range m.agents {
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record.Clone())
	}
	sortByID(records, func(r *AgentRecord) string { return r.ID })
	return records
}

// UpdateAgentStatus transitions the agent and persists the change.
func (m *Memory) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) (*AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.getAgentLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Status = status
	return m.storeAgentLocked(ctx, record)
}

// StoreTask upserts a task record, filling defaults for missing ID, status,
// and timestamps.
func (m *Memory) StoreTask(ctx context.Context, task *TaskRecord) (*TaskRecord, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: task", ErrNilRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeTaskLocked(ctx, task)
}

func (m *Memory) storeTaskLocked(ctx context.Context, task *TaskRecord) (*TaskRecord, error) {
	record := task.Clone()
	now := time.Now()
	if record.ID == "" {
		record.ID = NewTaskID()
	}
	if record.Status == "" {
		record.Status = TaskPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	value, err := memory.StructuredValue(record)
	if err != nil {
		return nil, err
	}

	if _, err := m.engine.Store(ctx, record.ID, value, memory.StoreOptions{
		Namespace: NamespaceTasks,
		Tags:      []string{"task", "status:" + string(record.Status)},
	}); err != nil {
		return nil, err
	}

	m.tasks[record.ID] = record

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventTaskStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.StoreTask",
		Data: map[string]any{
			"task_id": record.ID,
			"status":  string(record.Status),
		},
	})
	return record.Clone(), nil
}

// GetTask returns the task by ID, reading through to storage when it is not
// mirrored in memory. Returns ErrTaskNotFound when no record exists.
func (m *Memory) GetTask(ctx context.Context, id string) (*TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTaskLocked(ctx, id)
}

func (m *Memory) getTaskLocked(ctx context.Context, id string) (*TaskRecord, error) {
	if record, ok := m.tasks[id]; ok {
		return record.Clone(), nil
	}

	entry, err := m.engine.Retrieve(ctx, id, memory.RetrieveOptions{Namespace: NamespaceTasks})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	var record TaskRecord
	if err := entry.Value.Decode(&record); err != nil {
		return nil, err
	}
	m.tasks[record.ID] = &record
	return record.Clone(), nil
}

// ListTasks returns mirrored tasks filtered by status, ID ascending. An
// empty status matches all.
func (m *Memory) ListTasks(status TaskStatus) []*TaskRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*TaskRecord, 0, len(m.tasks))
	for _, record := range m.tasks {
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record.Clone())
	}
	sortByID(records, func(r *TaskRecord) string { return r.ID })
	return records
}

// UpdateTaskStatus transitions the task, stamping CompletedAt on the first
// transition into a terminal status.
func (m *Memory) UpdateTaskStatus(ctx context.Context, id string, status TaskStatus) (*TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.getTaskLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Status = status
	if status.Terminal() && record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now()
	}
	return m.storeTaskLocked(ctx, record)
}

// StoreConsensus upserts a consensus round. When the status is unset it is
// derived from the votes: achieved once the approval fraction reaches the
// threshold, pending otherwise.
func (m *Memory) StoreConsensus(ctx context.Context, consensus *ConsensusRecord) (*ConsensusRecord, error) {
	if consensus == nil {
		return nil, fmt.Errorf("%w: consensus", ErrNilRecord)
	}

	record := consensus.Clone()
	now := time.Now()
	if record.ID == "" {
		record.ID = NewConsensusID()
	}
	if record.Status == "" {
		record.Status = ConsensusPending
		if len(record.Votes) > 0 && record.Threshold > 0 &&
			float64(record.Approvals())/float64(len(record.Votes)) >= record.Threshold {
			record.Status = ConsensusAchieved
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	value, err := memory.StructuredValue(record)
	if err != nil {
		return nil, err
	}

	tags := []string{"consensus", "status:" + string(record.Status)}
	if record.TaskID != "" {
		tags = append(tags, "task:"+record.TaskID)
	}
	if _, err := m.engine.Store(ctx, record.ID, value, memory.StoreOptions{
		Namespace: NamespaceConsensus,
		Tags:      tags,
	}); err != nil {
		return nil, err
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventConsensusStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.StoreConsensus",
		Data: map[string]any{
			"consensus_id": record.ID,
			"task_id":      record.TaskID,
			"status":       string(record.Status),
			"votes":        len(record.Votes),
		},
	})
	return record, nil
}

// GetConsensus returns the consensus round by ID. Returns
// ErrConsensusNotFound when no record exists.
func (m *Memory) GetConsensus(ctx context.Context, id string) (*ConsensusRecord, error) {
	entry, err := m.engine.Retrieve(ctx, id, memory.RetrieveOptions{Namespace: NamespaceConsensus})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrConsensusNotFound, id)
	}

	var record ConsensusRecord
	if err := entry.Value.Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

// StoreMessage records an inter-agent message under the configured TTL, so
// communications age out instead of accumulating.
func (m *Memory) StoreMessage(ctx context.Context, message *Message) (*Message, error) {
	if message == nil {
		return nil, fmt.Errorf("%w: message", ErrNilRecord)
	}

	record := message.Clone()
	if record.ID == "" {
		record.ID = NewMessageID()
	}
	if record.SentAt.IsZero() {
		record.SentAt = time.Now()
	}

	value, err := memory.StructuredValue(record)
	if err != nil {
		return nil, err
	}

	tags := []string{"message"}
	if record.From != "" {
		tags = append(tags, "from:"+record.From)
	}
	if record.To != "" {
		tags = append(tags, "to:"+record.To)
	}
	if _, err := m.engine.Store(ctx, record.ID, value, memory.StoreOptions{
		Namespace: NamespaceCommunications,
		TTL:       m.cfg.MessageTTL,
		Tags:      tags,
	}); err != nil {
		return nil, err
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventMessageStored,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.StoreMessage",
		Data: map[string]any{
			"message_id": record.ID,
			"from":       record.From,
			"to":         record.To,
		},
	})
	return record, nil
}

// ListMessages returns live messages, most recently stored or read first.
// Limit follows the engine convention: 0 applies the default page size, a
// negative limit returns everything.
func (m *Memory) ListMessages(ctx context.Context, limit int) ([]*Message, error) {
	entries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceCommunications, Limit: limit})
	if err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(entries))
	for _, entry := range entries {
		var record Message
		if err := entry.Value.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", entry.Key, err)
		}
		messages = append(messages, &record)
	}
	return messages, nil
}

// RecordMetric stores one timestamped measurement in the metrics namespace.
func (m *Memory) RecordMetric(ctx context.Context, name string, value float64) error {
	if name == "" {
		return ErrEmptyMetricName
	}

	now := time.Now()
	payload, err := memory.StructuredValue(MetricSample{Name: name, Value: value, RecordedAt: now})
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s-%d", name, now.UnixNano())
	if _, err := m.engine.Store(ctx, key, payload, memory.StoreOptions{
		Namespace: NamespaceMetrics,
		Tags:      []string{"metric", "name:" + name},
	}); err != nil {
		return err
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventMetricRecorded,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "swarm.RecordMetric",
		Data:      map[string]any{"name": name, "value": value},
	})
	return nil
}

// ListMetrics returns recorded samples, newest activity first, optionally
// filtered by metric name. A non-positive limit returns everything.
func (m *Memory) ListMetrics(ctx context.Context, name string, limit int) ([]MetricSample, error) {
	entries, err := m.engine.List(ctx, memory.ListOptions{Namespace: NamespaceMetrics, Limit: -1})
	if err != nil {
		return nil, err
	}

	samples := make([]MetricSample, 0, len(entries))
	for _, entry := range entries {
		var sample MetricSample
		if err := entry.Value.Decode(&sample); err != nil {
			return nil, fmt.Errorf("decode metric %s: %w", entry.Key, err)
		}
		if name != "" && sample.Name != name {
			continue
		}
		samples = append(samples, sample)
		if limit > 0 && len(samples) == limit {
			break
		}
	}
	return samples, nil
}

// Stats merges engine statistics with counts derived from the mirrored
// records.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	engineStats, err := m.engine.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Memory:         engineStats,
		AgentsByStatus: make(map[AgentStatus]int),
		TasksByStatus:  make(map[TaskStatus]int),
		Patterns:       len(m.patterns),
	}
	for _, record := range m.agents {
		stats.AgentsByStatus[record.Status]++
	}
	for _, record := range m.tasks {
		stats.TasksByStatus[record.Status]++
	}
	return stats, nil
}

// Stats aggregates engine statistics with swarm record counts.
type Stats struct {
	Memory         memory.Stats        `json:"memory"`
	AgentsByStatus map[AgentStatus]int `json:"agents_by_status"`
	TasksByStatus  map[TaskStatus]int  `json:"tasks_by_status"`
	Patterns       int                 `json:"patterns"`
}

// sortByID orders records by their identifier for deterministic listings.
func sortByID[T any](records []T, id func(T) string) {
	slices.SortFunc(records, func(a, b T) int {
		return strings.Compare(id(a), id(b))
	})
}
