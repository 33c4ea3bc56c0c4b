package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/store"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/types"
)

// ErrSessionNotFound indicates no session blob exists for the ID.
var ErrSessionNotFound = errors.New("session not found")

// SaveRequest is the single typed save argument: one session ID, one
// blob. Nothing is inferred from argument shapes.
type SaveRequest struct {
	SessionID string
	Blob      []byte
}

// Manager is the durable sessionId -> blob map over the remote store.
// Saves are last-writer-wins and atomic from the caller's view: the
// full new chunk set is written before the metadata record is swapped,
// and stale tail chunks are pruned only after the swap.
type Manager struct {
	remote  store.Store
	chunker *Chunker
	quota   int64
	logger  *logging.Logger
}

// NewManager creates a session manager over the given store handle.
func NewManager(remote store.Store, chunker *Chunker, quota int64, logger *logging.Logger) *Manager {
	return &Manager{
		remote:  remote,
		chunker: chunker,
		quota:   quota,
		logger:  logger,
	}
}

// Exists reports whether a session blob is recorded for the ID.
func (m *Manager) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, err := m.remote.GetMetadata(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Save persists a blob under the session ID, replacing any previous
// blob for the same ID.
func (m *Manager) Save(ctx context.Context, req SaveRequest) error {
	if req.SessionID == "" {
		return fmt.Errorf("save: empty session id")
	}

	if m.quota > 0 {
		used, err := m.remote.TotalSize(ctx)
		if err != nil {
			return fmt.Errorf("save %s: %w", req.SessionID, err)
		}
		if used+int64(len(req.Blob)) > m.quota {
			return &store.QuotaError{UsedBytes: used, QuotaBytes: m.quota}
		}
	}

	chunkCount, err := m.chunker.Upload(ctx, req.SessionID, req.Blob)
	if err != nil {
		return fmt.Errorf("save %s: %w", req.SessionID, err)
	}

	now := time.Now().UTC()
	meta := &store.SessionMetadata{
		SessionID:      req.SessionID,
		ChunkCount:     chunkCount,
		TotalSizeBytes: int64(len(req.Blob)),
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
	if err := m.remote.PutMetadata(ctx, meta); err != nil {
		return fmt.Errorf("save %s: %w", req.SessionID, err)
	}

	// A shrinking overwrite leaves chunks beyond the new count behind;
	// they are unreachable once the metadata swap lands, so prune
	// failures only cost storage, not correctness.
	if err := m.remote.DeleteChunksFrom(ctx, req.SessionID, chunkCount); err != nil {
		m.logger.Warn("Failed to prune stale chunks after save",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}

	m.logger.Info("Session blob saved",
		zap.String("session_id", req.SessionID),
		zap.Int("chunks", chunkCount),
		zap.Int64("bytes", meta.TotalSizeBytes),
	)
	return nil
}

// Extract retrieves the blob for a session ID. It fails closed: if any
// recorded chunk cannot be retrieved the whole extract fails, never a
// truncated blob. Returns ErrSessionNotFound when no record exists.
func (m *Manager) Extract(ctx context.Context, sessionID string) ([]byte, error) {
	meta, err := m.remote.GetMetadata(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", sessionID, err)
	}

	blob, err := m.chunker.Download(ctx, sessionID, meta.ChunkCount, meta.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", sessionID, err)
	}

	meta.LastAccessedAt = time.Now().UTC()
	if err := m.remote.PutMetadata(ctx, meta); err != nil {
		// Access-time bookkeeping only; the extract itself succeeded.
		m.logger.Warn("Failed to update last access time",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	return blob, nil
}

// Delete removes the session blob and its metadata. Deleting a missing
// session succeeds.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.remote.DeleteChunks(ctx, sessionID); err != nil {
		return fmt.Errorf("delete %s: %w", sessionID, err)
	}
	if err := m.remote.DeleteMetadata(ctx, sessionID); err != nil {
		return fmt.Errorf("delete %s: %w", sessionID, err)
	}
	m.logger.Info("Session blob deleted", zap.String("session_id", sessionID))
	return nil
}

// Usage reports remote-store consumption against quota for the
// dashboard.
func (m *Manager) Usage(ctx context.Context) (*types.StorageReport, error) {
	used, err := m.remote.TotalSize(ctx)
	if err != nil {
		return nil, err
	}

	metas, err := m.remote.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}

	report := &types.StorageReport{
		UsedBytes:  used,
		QuotaBytes: m.quota,
		Sessions:   make([]types.SessionUsage, 0, len(metas)),
	}
	if m.quota > 0 {
		report.UsedRatio = float64(used) / float64(m.quota)
	}
	for _, meta := range metas {
		report.Sessions = append(report.Sessions, types.SessionUsage{
			SessionID:      meta.SessionID,
			ChunkCount:     meta.ChunkCount,
			TotalSizeBytes: meta.TotalSizeBytes,
			UpdatedAt:      meta.UpdatedAt,
		})
	}
	return report, nil
}
