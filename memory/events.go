package memory

import "github.com/lanemc/swarmmem/observability"

// Memory engine event types emitted during entry lifecycle operations.
const (
	EventStored   observability.EventType = "memory.stored"
	EventDeleted  observability.EventType = "memory.deleted"
	EventCleanup  observability.EventType = "memory.cleanup"
	EventFallback observability.EventType = "memory.fallback"
	EventBackup   observability.EventType = "memory.backup"
	EventClosed   observability.EventType = "memory.closed"
	EventError    observability.EventType = "memory.error"
)
