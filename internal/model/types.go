package model

import (
	"time"
)

// ConnectionID is the stable digest of a target string, used as the sole
// key for socket filenames and registry rows.
type ConnectionID string

// Target is a parsed user@host[:port] specification. Raw preserves the
// exact input string; keying always happens on Raw, never on the parsed
// form, so two spellings of the same logical host stay distinct.
type Target struct {
	Raw  string
	User string
	Host string
	Port int
}

// Addr returns the user@host destination passed to the ssh client.
func (t Target) Addr() string {
	return t.User + "@" + t.Host
}

// DefaultPort is assumed when the target omits an explicit port.
const DefaultPort = 22

// RegistryRow is one tracked connection in the durable registry.
type RegistryRow struct {
	ConnectionID ConnectionID
	Target       string
	RegisteredAt time.Time
}

// DetectionMethod records how a device type was classified.
type DetectionMethod string

const (
	MethodRule DetectionMethod = "rule"
	MethodAI   DetectionMethod = "ai"
)

// CacheEntry is a cached device-type classification for a target.
type CacheEntry struct {
	DeviceType string          `json:"device_type"`
	DetectedAt time.Time       `json:"detected_at"`
	Method     DetectionMethod `json:"method"`
	Version    int             `json:"version"`
	Target     string          `json:"target"`
}

// CloseOutcome distinguishes a graceful control-channel exit from a
// forced socket removal. Both count as success for the caller.
type CloseOutcome string

const (
	CloseGraceful CloseOutcome = "graceful"
	CloseForced   CloseOutcome = "forced"
)

// ConnectionStatus is one row of the detailed connection listing.
type ConnectionStatus struct {
	ConnectionID ConnectionID
	Target       string
	Connected    bool
	DeviceType   string
	RegisteredAt time.Time
}
