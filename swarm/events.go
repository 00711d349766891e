package swarm

import "github.com/lanemc/swarmmem/observability"

// Swarm event types emitted by domain operations.
const (
	EventBootstrap       observability.EventType = "swarm.bootstrap"
	EventAgentStored     observability.EventType = "swarm.agent.stored"
	EventTaskStored      observability.EventType = "swarm.task.stored"
	EventConsensusStored observability.EventType = "swarm.consensus.stored"
	EventPatternStored   observability.EventType = "swarm.pattern.stored"
	EventMessageStored   observability.EventType = "swarm.message.stored"
	EventMetricRecorded  observability.EventType = "swarm.metric.recorded"
	EventCleanup         observability.EventType = "swarm.cleanup"
	EventExport          observability.EventType = "swarm.export"
	EventImport          observability.EventType = "swarm.import"
)
