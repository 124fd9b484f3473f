package model

import "errors"

// Error taxonomy surfaced to callers. Probe functions never return these;
// they report booleans, and higher-level operations translate a failed
// probe into a typed error only where the caller actually needed the
// connection.
var (
	ErrInvalidTarget       = errors.New("invalid target format")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrConnectionUnhealthy = errors.New("connection unhealthy")
	ErrConnectionTimeout   = errors.New("connection attempt timed out")
	ErrCacheWrite          = errors.New("cache write failed")
	ErrRegistryIO          = errors.New("registry io error")
	ErrDeviceTypeNotCached = errors.New("device type not cached")
)
