package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "whatsapp-bot-main", cfg.Session.SessionID())
	assert.Equal(t, int64(20<<20), cfg.Store.SingleObjectThreshold)
	assert.Equal(t, int64(8<<20), cfg.Store.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Store.ChunkOpTimeout)
	assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Recovery.ReconnectBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.WatchdogInterval)
	assert.InDelta(t, 0.75, cfg.Recovery.SoftQuotaRatio, 0.001)
	assert.InDelta(t, 0.90, cfg.Recovery.HardQuotaRatio, 0.001)
	assert.Equal(t, 10, cfg.Queue.MaxSize)
	assert.Equal(t, 3*time.Second, cfg.Queue.MinCommandInterval)
	assert.Equal(t, time.Second, cfg.Queue.InterItemPause)
	assert.Equal(t, 30, cfg.Queue.MaxCachedMessages)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_CLIENT_ID", "staging-bot")
	t.Setenv("QUEUE_MAX_SIZE", "5")
	t.Setenv("RECOVERY_RECONNECT_BACKOFF", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "staging-bot-main", cfg.Session.SessionID())
	assert.Equal(t, 5, cfg.Queue.MaxSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Recovery.ReconnectBackoff)
}

func TestValidateRejectsBadChunking(t *testing.T) {
	t.Setenv("STORE_CHUNK_SIZE", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsThresholdBelowChunk(t *testing.T) {
	t.Setenv("STORE_SINGLE_OBJECT_THRESHOLD", "1024")
	t.Setenv("STORE_CHUNK_SIZE", "4096")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsInvertedQuotaRatios(t *testing.T) {
	t.Setenv("RECOVERY_SOFT_QUOTA_RATIO", "0.95")
	t.Setenv("RECOVERY_HARD_QUOTA_RATIO", "0.90")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsZeroQueue(t *testing.T) {
	t.Setenv("QUEUE_MAX_SIZE", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultMatchesLoad(t *testing.T) {
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
