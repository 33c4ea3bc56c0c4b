package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/session"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/store"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
)

// WatchdogConfig bounds the quota poll loop.
type WatchdogConfig struct {
	// ActiveSessionID is spared on soft purges.
	ActiveSessionID string

	QuotaBytes int64
	Interval   time.Duration
	SoftRatio  float64
	HardRatio  float64

	// MinPurgeInterval rate-limits purges: back-to-back checks above
	// threshold trigger exactly one.
	MinPurgeInterval  time.Duration
	StaleSessionAfter time.Duration
}

// Watchdog polls remote store usage and reclaims space before the
// backing service starts rejecting writes.
type Watchdog struct {
	remote   store.Store
	sessions *session.Manager
	cfg      WatchdogConfig
	onHard   func(ctx context.Context)
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu        sync.Mutex
	lastPurge time.Time

	now func() time.Time
}

// NewWatchdog creates a quota watchdog. Run must be called for polling
// to start.
func NewWatchdog(remote store.Store, sessions *session.Manager, cfg WatchdogConfig, logger *logging.Logger) *Watchdog {
	return &Watchdog{
		remote:   remote,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithMetrics attaches a metrics collector.
func (w *Watchdog) WithMetrics(m *monitoring.Metrics) *Watchdog {
	w.metrics = m
	return w
}

// WithHardQuotaHook sets the callback invoked after a hard-threshold
// purge. The controller uses it to force fresh pairing so the next
// backup starts from a clean slate.
func (w *Watchdog) WithHardQuotaHook(fn func(ctx context.Context)) *Watchdog {
	w.onHard = fn
	return w
}

// Run polls on the configured interval until the context ends.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Check(ctx); err != nil {
				w.logger.Warn("Quota check failed", zap.Error(err))
			}
		}
	}
}

// Check runs one quota poll: measure usage, and purge when a threshold
// is crossed and the purge rate limit allows.
func (w *Watchdog) Check(ctx context.Context) error {
	used, err := w.remote.TotalSize(ctx)
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.StoreBytes.Set(float64(used))
	}
	if w.cfg.QuotaBytes <= 0 {
		return nil
	}

	ratio := float64(used) / float64(w.cfg.QuotaBytes)
	if ratio < w.cfg.SoftRatio {
		return nil
	}

	w.mu.Lock()
	now := w.now()
	if !w.lastPurge.IsZero() && now.Sub(w.lastPurge) < w.cfg.MinPurgeInterval {
		w.mu.Unlock()
		w.logger.Debug("Purge suppressed by rate limit",
			zap.Float64("used_ratio", ratio),
		)
		return nil
	}
	w.lastPurge = now
	w.mu.Unlock()

	aggressive := ratio >= w.cfg.HardRatio
	severity := "soft"
	if aggressive {
		severity = "hard"
	}
	w.logger.Warn("Store quota threshold crossed, purging",
		zap.String("severity", severity),
		zap.Int64("used_bytes", used),
		zap.Int64("quota_bytes", w.cfg.QuotaBytes),
	)

	if err := w.purge(ctx, aggressive); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.WatchdogPurges.WithLabelValues(severity).Inc()
	}

	if aggressive && w.onHard != nil {
		w.onHard(ctx)
	}
	return nil
}

// purge reclaims space. A soft purge drops orphaned chunks and stale
// sessions while sparing the active one; an aggressive purge drops
// every session, the active one included, because fresh pairing
// follows anyway.
func (w *Watchdog) purge(ctx context.Context, aggressive bool) error {
	orphans, err := w.purgeOrphanChunks(ctx)
	if err != nil {
		return err
	}

	metas, err := w.remote.ListMetadata(ctx)
	if err != nil {
		return err
	}

	now := w.now()
	dropped := 0
	for _, meta := range metas {
		if !aggressive {
			if meta.SessionID == w.cfg.ActiveSessionID {
				continue
			}
			if now.Sub(meta.LastAccessedAt) < w.cfg.StaleSessionAfter {
				continue
			}
		}
		if err := w.sessions.Delete(ctx, meta.SessionID); err != nil {
			w.logger.Warn("Failed to purge session",
				zap.String("session_id", meta.SessionID),
				zap.Error(err),
			)
			continue
		}
		dropped++
	}

	w.logger.Info("Purge complete",
		zap.Bool("aggressive", aggressive),
		zap.Int("sessions_dropped", dropped),
		zap.Int("orphan_sessions", orphans),
	)
	return nil
}

// purgeOrphanChunks removes chunks with no metadata record and chunk
// tails beyond each session's recorded count. Both are unreachable
// leftovers of interrupted saves.
func (w *Watchdog) purgeOrphanChunks(ctx context.Context) (int, error) {
	ids, err := w.remote.ListChunkSessions(ctx)
	if err != nil {
		return 0, err
	}

	orphans := 0
	for _, sessionID := range ids {
		meta, err := w.remote.GetMetadata(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			if err := w.remote.DeleteChunks(ctx, sessionID); err != nil {
				w.logger.Warn("Failed to drop orphan chunks",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				continue
			}
			orphans++
			continue
		}
		if err != nil {
			return orphans, err
		}
		if err := w.remote.DeleteChunksFrom(ctx, sessionID, meta.ChunkCount); err != nil {
			w.logger.Warn("Failed to prune chunk tail",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
	return orphans, nil
}
