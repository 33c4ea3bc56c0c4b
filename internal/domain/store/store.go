package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// TransientError marks a store/network failure that a higher level may
// retry. Primitive operations never retry on their own.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient store failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// QuotaError indicates a write was refused because it would push the
// store past its quota.
type QuotaError struct {
	UsedBytes  int64
	QuotaBytes int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("store quota exceeded: %d of %d bytes used", e.UsedBytes, e.QuotaBytes)
}

// IsQuota reports whether err is a quota rejection.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// SessionMetadata is the per-session bookkeeping record. It is
// created/overwritten on every successful save and read on restore and
// by the quota watchdog.
type SessionMetadata struct {
	SessionID      string
	ChunkCount     int
	TotalSizeBytes int64
	LastAccessedAt time.Time
	UpdatedAt      time.Time
}

// ChunkRecord is one ordered part of a session blob, unique per
// (SessionID, ChunkIndex).
type ChunkRecord struct {
	SessionID   string
	ChunkIndex  int
	Payload     []byte
	TotalChunks int
}

// Store is the remote-store handle injected into the session layer.
// Implementations map it onto any document/table store providing the
// logical schema; they return ErrNotFound for missing records and wrap
// infrastructure failures in TransientError.
type Store interface {
	GetMetadata(ctx context.Context, sessionID string) (*SessionMetadata, error)
	PutMetadata(ctx context.Context, meta *SessionMetadata) error
	DeleteMetadata(ctx context.Context, sessionID string) error
	ListMetadata(ctx context.Context) ([]*SessionMetadata, error)

	GetChunk(ctx context.Context, sessionID string, index int) (*ChunkRecord, error)
	PutChunk(ctx context.Context, chunk *ChunkRecord) error
	DeleteChunks(ctx context.Context, sessionID string) error
	// DeleteChunksFrom removes chunk records with index >= from,
	// pruning leftovers after a shrinking overwrite.
	DeleteChunksFrom(ctx context.Context, sessionID string, from int) error
	// ListChunkSessions returns the distinct session IDs present in the
	// chunk table, including orphans without a metadata record.
	ListChunkSessions(ctx context.Context) ([]string, error)

	// TotalSize returns the aggregate payload size across all sessions.
	TotalSize(ctx context.Context) (int64, error)

	Close()
}
