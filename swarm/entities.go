package swarm

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// AgentStatus tracks an agent's lifecycle within the swarm.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status ends a task's lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ConsensusStatus tracks a consensus round's outcome.
type ConsensusStatus string

const (
	ConsensusPending  ConsensusStatus = "pending"
	ConsensusAchieved ConsensusStatus = "achieved"
	ConsensusFailed   ConsensusStatus = "failed"
)

// AgentMetrics aggregates per-agent performance counters.
type AgentMetrics struct {
	TasksCompleted int           `json:"tasks_completed"`
	SuccessRate    float64       `json:"success_rate"`
	AvgResponse    time.Duration `json:"avg_response"`
}

// AgentRecord describes one member of the swarm.
type AgentRecord struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Status       AgentStatus  `json:"status"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Metrics      AgentMetrics `json:"metrics"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Clone returns an independent copy of the record.
func (a *AgentRecord) Clone() *AgentRecord {
	clone := *a
	clone.Capabilities = slices.Clone(a.Capabilities)
	return &clone
}

// TaskRecord describes a unit of work distributed across the swarm.
type TaskRecord struct {
	ID             string          `json:"id"`
	Status         TaskStatus      `json:"status"`
	Priority       int             `json:"priority"`
	AssignedAgents []string        `json:"assigned_agents,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    time.Time       `json:"completed_at,omitzero"`
}

// Clone returns an independent copy of the record.
func (t *TaskRecord) Clone() *TaskRecord {
	clone := *t
	clone.AssignedAgents = slices.Clone(t.AssignedAgents)
	clone.Result = slices.Clone(t.Result)
	return &clone
}

// Message is one inter-agent communication. Messages carry a TTL, so they
// age out of storage instead of accumulating.
type Message struct {
	ID      string          `json:"id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// Clone returns an independent copy of the message.
func (m *Message) Clone() *Message {
	clone := *m
	clone.Payload = slices.Clone(m.Payload)
	return &clone
}

// ConsensusRecord captures one consensus round over a task decision.
type ConsensusRecord struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Status    ConsensusStatus `json:"status"`
	Threshold float64         `json:"threshold"`
	Votes     map[string]bool `json:"votes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns an independent copy of the record.
func (c *ConsensusRecord) Clone() *ConsensusRecord {
	clone := *c
	clone.Votes = maps.Clone(c.Votes)
	return &clone
}

// Approvals counts affirmative votes.
func (c *ConsensusRecord) Approvals() int {
	approvals := 0
	for _, approve := range c.Votes {
		if approve {
			approvals++
		}
	}
	return approvals
}

// LearnedPattern is a behavior the swarm has observed working, scored for
// reuse by FindBestPatterns.
type LearnedPattern struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Confidence  float64   `json:"confidence"`
	UsageCount  int64     `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the pattern.
func (p *LearnedPattern) Clone() *LearnedPattern {
	clone := *p
	return &clone
}

// MetricSample is one recorded measurement in the metrics namespace.
type MetricSample struct {
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewAgentID returns a fresh prefixed agent identifier.
func NewAgentID() string { return "agent-" + uuid.NewString() }

// NewTaskID returns a fresh prefixed task identifier.
func NewTaskID() string { return "task-" + uuid.NewString() }

// NewMessageID returns a fresh prefixed message identifier.
func NewMessageID() string { return "msg-" + uuid.NewString() }

// NewConsensusID returns a fresh prefixed consensus identifier.
func NewConsensusID() string { return "consensus-" + uuid.NewString() }

// NewPatternID returns a fresh prefixed pattern identifier.
func NewPatternID() string { return "pattern-" + uuid.NewString() }
