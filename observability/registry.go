package observability

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
)

// GetObserver resolves an observer by its registered name. Config fields and
// command-line flags carry observer names as plain strings; this is where
// those strings become sinks. "noop" (discard) and "slog" (default logger)
// are available without registration. Unknown names fail with an error that
// lists every registered name.
func GetObserver(name string) (Observer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	observer, ok := registry[name]
	if !ok {
		known := slices.Sorted(maps.Keys(registry))
		return nil, fmt.Errorf("unknown observer %q (registered: %s)", name, strings.Join(known, ", "))
	}
	return observer, nil
}

// RegisterObserver makes an observer resolvable through GetObserver.
// Registering a name again replaces the previous observer.
func RegisterObserver(name string, observer Observer) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = observer
}
