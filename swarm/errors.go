package swarm

import "errors"

// Domain lookup failures. These identify a missing record by kind, distinct
// from backend I/O errors, which pass through wrapped.
var (
	ErrNilRecord         = errors.New("nil record")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrConsensusNotFound = errors.New("consensus not found")
	ErrPatternNotFound   = errors.New("pattern not found")
	ErrEmptyMetricName   = errors.New("empty metric name")
)
