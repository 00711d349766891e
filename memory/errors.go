package memory

import "errors"

// Sentinel errors for engine and backend operations. Backend I/O failures
// are wrapped with their operation name and propagate unchanged; absent or
// expired entries are reported as a nil result, never an error.
var (
	ErrNotInitialized = errors.New("store not initialized")
	ErrClosed         = errors.New("memory engine closed")
	ErrEmptyKey       = errors.New("empty key")
	ErrEmptyValue     = errors.New("empty value")
	ErrEmptyPattern   = errors.New("empty search pattern")
	ErrSerialization  = errors.New("value serialization failed")
)
