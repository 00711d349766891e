package memory

import (
	"context"
	"time"

	"github.com/lanemc/swarmmem/observability"
)

// SelectBackend opens the durable SQLite backend described by cfg. When the
// database cannot be opened or migrated the engine must still come up, so
// the failure is reported through the observer and an empty in-memory
// backend is returned instead. The boolean reports whether the durable
// backend was selected.
func SelectBackend(cfg Config, observer observability.Observer) (Backend, bool) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	store, err := NewDurableStore(cfg.Directory, cfg.Filename)
	if err == nil {
		return store, true
	}

	observer.OnEvent(context.Background(), observability.Event{
		Type:      EventFallback,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "memory.SelectBackend",
		Data: map[string]any{
			"directory": cfg.Directory,
			"filename":  cfg.Filename,
			"error":     err.Error(),
		},
	})
	return NewVolatileStore(), false
}
