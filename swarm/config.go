package swarm

import (
	"time"

	"github.com/lanemc/swarmmem/memory"
)

// Defaults applied by DefaultConfig.
const (
	DefaultDirectory         = ".swarm"
	DefaultFilename          = "swarm-memory.db"
	DefaultBootstrapLimit    = 1000
	DefaultMessageTTL        = 24 * time.Hour
	DefaultPatternConfidence = 0.7
	DefaultCleanupMaxAge     = 7 * 24 * time.Hour
)

// Config holds swarm memory initialization parameters. The embedded engine
// config keeps its own defaults except for the swarm-specific database
// location.
type Config struct {
	Memory memory.Config `json:"memory"`

	// BootstrapLimit bounds the per-namespace scan that seeds the in-process
	// maps on startup.
	BootstrapLimit int `json:"bootstrap_limit,omitempty"`

	// MessageTTL is applied to stored inter-agent messages.
	MessageTTL time.Duration `json:"message_ttl,omitempty"`

	// PatternConfidence is the minimum confidence for a learned pattern to
	// be seeded into memory at bootstrap.
	PatternConfidence float64 `json:"pattern_confidence,omitempty"`
}

// DefaultConfig returns the default swarm configuration.
func DefaultConfig() Config {
	engineCfg := memory.DefaultConfig()
	engineCfg.Directory = DefaultDirectory
	engineCfg.Filename = DefaultFilename
	return Config{
		Memory:            engineCfg,
		BootstrapLimit:    DefaultBootstrapLimit,
		MessageTTL:        DefaultMessageTTL,
		PatternConfidence: DefaultPatternConfidence,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Memory.Merge(&source.Memory)
	if source.BootstrapLimit > 0 {
		c.BootstrapLimit = source.BootstrapLimit
	}
	if source.MessageTTL != 0 {
		c.MessageTTL = source.MessageTTL
	}
	if source.PatternConfidence > 0 {
		c.PatternConfidence = source.PatternConfidence
	}
}
