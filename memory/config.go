package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults applied by DefaultConfig.
const (
	DefaultDirectory            = ".hive-mind"
	DefaultFilename             = "memory.db"
	DefaultCacheMaxEntries      = 1000
	DefaultCacheMaxBytes        = 50 * 1024 * 1024
	DefaultCleanupInterval      = 5 * time.Minute
	DefaultCompressionThreshold = 10 * 1024
	DefaultListLimit            = 100
)

// Config holds engine initialization parameters. Zero fields take the
// package defaults. A negative CleanupInterval disables the background
// expiry sweep; manual Cleanup remains available.
type Config struct {
	Directory            string        `json:"directory,omitempty"`
	Filename             string        `json:"filename,omitempty"`
	CacheMaxEntries      int           `json:"cache_max_entries,omitempty"`
	CacheMaxBytes        int64         `json:"cache_max_bytes,omitempty"`
	CleanupInterval      time.Duration `json:"cleanup_interval,omitempty"`
	CompressionThreshold int64         `json:"compression_threshold,omitempty"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Directory:            DefaultDirectory,
		Filename:             DefaultFilename,
		CacheMaxEntries:      DefaultCacheMaxEntries,
		CacheMaxBytes:        DefaultCacheMaxBytes,
		CleanupInterval:      DefaultCleanupInterval,
		CompressionThreshold: DefaultCompressionThreshold,
	}
}

// Merge applies non-zero values from source into c. A negative
// CleanupInterval carries over so callers can disable the sweep explicitly.
func (c *Config) Merge(source *Config) {
	if source.Directory != "" {
		c.Directory = source.Directory
	}
	if source.Filename != "" {
		c.Filename = source.Filename
	}
	if source.CacheMaxEntries > 0 {
		c.CacheMaxEntries = source.CacheMaxEntries
	}
	if source.CacheMaxBytes > 0 {
		c.CacheMaxBytes = source.CacheMaxBytes
	}
	if source.CleanupInterval != 0 {
		c.CleanupInterval = source.CleanupInterval
	}
	if source.CompressionThreshold > 0 {
		c.CompressionThreshold = source.CompressionThreshold
	}
}

func (c *Config) validate() error {
	if strings.ContainsAny(c.Filename, `/\`) {
		return fmt.Errorf("invalid filename %q: must not contain path separators", c.Filename)
	}
	return nil
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config. Durations are encoded as nanosecond integers.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
