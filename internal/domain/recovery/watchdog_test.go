package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/session"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/store"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
)

func testWatchdog(remote store.Store) *Watchdog {
	logger := logging.NewNop()
	sessions := session.NewManager(remote, session.NewChunker(remote, 8, 20, time.Second), 0, logger)
	return NewWatchdog(remote, sessions, WatchdogConfig{
		ActiveSessionID:   "bot-main",
		QuotaBytes:        100,
		Interval:          time.Minute,
		SoftRatio:         0.75,
		HardRatio:         0.90,
		MinPurgeInterval:  10 * time.Minute,
		StaleSessionAfter: 24 * time.Hour,
	}, logger)
}

func seedSession(t *testing.T, remote store.Store, sessionID string, size int, lastAccess time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, remote.PutChunk(ctx, &store.ChunkRecord{
		SessionID:   sessionID,
		ChunkIndex:  0,
		Payload:     make([]byte, size),
		TotalChunks: 1,
	}))
	require.NoError(t, remote.PutMetadata(ctx, &store.SessionMetadata{
		SessionID:      sessionID,
		ChunkCount:     1,
		TotalSizeBytes: int64(size),
		LastAccessedAt: lastAccess,
		UpdatedAt:      lastAccess,
	}))
}

func seedOrphanChunks(t *testing.T, remote store.Store, sessionID string, size int) {
	t.Helper()
	require.NoError(t, remote.PutChunk(context.Background(), &store.ChunkRecord{
		SessionID:   sessionID,
		ChunkIndex:  0,
		Payload:     make([]byte, size),
		TotalChunks: 1,
	}))
}

func TestWatchdogBelowThresholdNoPurge(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	seedSession(t, remote, "bot-main", 50, time.Now())
	require.NoError(t, w.Check(ctx))

	used, err := remote.TotalSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), used)
}

func TestWatchdogSoftPurgeSparesActiveSession(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	seedSession(t, remote, "bot-main", 40, time.Now())
	seedSession(t, remote, "old-bot", 30, time.Now().Add(-48*time.Hour))
	seedOrphanChunks(t, remote, "interrupted-save", 15)
	// 85 of 100 bytes: above soft, below hard.

	require.NoError(t, w.Check(ctx))

	exists, err := remote.GetMetadata(ctx, "bot-main")
	require.NoError(t, err)
	assert.NotNil(t, exists)

	_, err = remote.GetMetadata(ctx, "old-bot")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ids, err := remote.ListChunkSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-main"}, ids)
}

func TestWatchdogSoftPurgeKeepsRecentSessions(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	seedSession(t, remote, "bot-main", 40, time.Now())
	seedSession(t, remote, "other-recent", 40, time.Now().Add(-time.Hour))

	require.NoError(t, w.Check(ctx))

	_, err := remote.GetMetadata(ctx, "other-recent")
	assert.NoError(t, err)
}

func TestWatchdogHardPurgeDropsEverythingAndFiresHook(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	hookCalls := 0
	w.WithHardQuotaHook(func(ctx context.Context) { hookCalls++ })

	seedSession(t, remote, "bot-main", 60, time.Now())
	seedSession(t, remote, "old-bot", 35, time.Now())
	// 95 of 100 bytes: above hard.

	require.NoError(t, w.Check(ctx))

	used, err := remote.TotalSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, used)

	metas, err := remote.ListMetadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)

	assert.Equal(t, 1, hookCalls)
}

func TestWatchdogPurgeRateLimited(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	base := time.Now()
	now := base
	w.now = func() time.Time { return now }

	seedSession(t, remote, "old-bot", 80, base.Add(-48*time.Hour))
	require.NoError(t, w.Check(ctx))

	_, err := remote.GetMetadata(ctx, "old-bot")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Back above threshold right away: the second check must not purge.
	seedSession(t, remote, "old-bot-2", 80, base.Add(-48*time.Hour))
	now = base.Add(time.Minute)
	require.NoError(t, w.Check(ctx))

	_, err = remote.GetMetadata(ctx, "old-bot-2")
	assert.NoError(t, err)

	// Past the purge interval it may act again.
	now = base.Add(11 * time.Minute)
	require.NoError(t, w.Check(ctx))

	_, err = remote.GetMetadata(ctx, "old-bot-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWatchdogPrunesChunkTails(t *testing.T) {
	remote := store.NewMemoryStore()
	w := testWatchdog(remote)
	ctx := context.Background()

	// Metadata records one chunk but two are present, the leftover of
	// an interrupted shrinking save.
	seedSession(t, remote, "bot-main", 40, time.Now())
	require.NoError(t, remote.PutChunk(ctx, &store.ChunkRecord{
		SessionID:   "bot-main",
		ChunkIndex:  1,
		Payload:     make([]byte, 40),
		TotalChunks: 1,
	}))

	require.NoError(t, w.Check(ctx))

	_, err := remote.GetChunk(ctx, "bot-main", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = remote.GetChunk(ctx, "bot-main", 0)
	assert.NoError(t, err)
}
