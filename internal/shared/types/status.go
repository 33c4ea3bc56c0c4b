package types

import "time"

// Connection status values reported to the dashboard.
const (
	StatusDisconnected    = "disconnected"
	StatusAwaitingPairing = "awaiting_pairing"
	StatusAuthenticating  = "authenticating"
	StatusReady           = "ready"
	StatusRestoring       = "restoring"
	StatusRestoreFailed   = "restore_failed"
)

// BotStatus is the aggregate status snapshot served to the dashboard.
type BotStatus struct {
	Status          string     `json:"status"`
	QueueDepth      int        `json:"queue_depth"`
	Processing      bool       `json:"processing"`
	RestoreAttempts int        `json:"restore_attempts"`
	ForceFresh      bool       `json:"force_fresh_pairing"`
	LastReadyAt     *time.Time `json:"last_ready_at,omitempty"`
}

// QueueStatus reports admission queue state.
type QueueStatus struct {
	Depth      int  `json:"depth"`
	MaxSize    int  `json:"max_size"`
	Processing bool `json:"processing"`
}

// StorageReport summarizes remote store usage against quota.
type StorageReport struct {
	UsedBytes  int64          `json:"used_bytes"`
	QuotaBytes int64          `json:"quota_bytes"`
	UsedRatio  float64        `json:"used_ratio"`
	Sessions   []SessionUsage `json:"sessions"`
}

// SessionUsage is the per-session slice of a storage report.
type SessionUsage struct {
	SessionID      string    `json:"session_id"`
	ChunkCount     int       `json:"chunk_count"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	UpdatedAt      time.Time `json:"updated_at"`
}
