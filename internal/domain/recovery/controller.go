package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/chat"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/queue"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/session"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/id"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/types"
)

// Config bounds the controller's retry loop.
type Config struct {
	SessionID        string
	WorkingDir       string
	MaxAttempts      int
	ReconnectBackoff time.Duration
}

// Notifier receives push updates for the dashboard. Implementations
// must not block.
type Notifier interface {
	NotifyStatus(status string)
	NotifyPairing(token string)
}

// Controller drives the session lifecycle: it consumes driver events,
// runs the state machine, and executes the resulting actions.
type Controller struct {
	driver   chat.Driver
	sessions *session.Manager
	archiver *session.Archiver
	queue    *queue.Queue
	cfg      Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	notifier Notifier

	mu            sync.Mutex
	state         State
	snap          Snapshot
	restoring     bool
	restoreFailed bool
	initInFlight  bool
	pairingToken  string
}

// NewController creates a recovery controller. Run must be called for
// it to do anything.
func NewController(
	driver chat.Driver,
	sessions *session.Manager,
	archiver *session.Archiver,
	q *queue.Queue,
	cfg Config,
	logger *logging.Logger,
) *Controller {
	return &Controller{
		driver:   driver,
		sessions: sessions,
		archiver: archiver,
		queue:    q,
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
		snap:     Snapshot{MaxAttempts: cfg.MaxAttempts},
	}
}

// WithMetrics attaches a metrics collector.
func (c *Controller) WithMetrics(m *monitoring.Metrics) *Controller {
	c.metrics = m
	return c
}

// WithNotifier attaches a dashboard push notifier.
func (c *Controller) WithNotifier(n Notifier) *Controller {
	c.notifier = n
	return c
}

// Run starts the first initialization cycle and consumes driver events
// until the context ends or the driver closes its stream.
func (c *Controller) Run(ctx context.Context) {
	c.apply(ctx, EventInitialize)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.driver.Events():
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

// handle maps a driver notification onto the state machine.
func (c *Controller) handle(ctx context.Context, ev chat.Event) {
	switch ev.Kind {
	case chat.EventPairing:
		c.mu.Lock()
		c.pairingToken = ev.Token
		c.mu.Unlock()
		c.logger.Info("Pairing token issued")
		if c.notifier != nil {
			c.notifier.NotifyPairing(ev.Token)
		}
		c.apply(ctx, EventPairingRequired)

	case chat.EventAuthenticated:
		c.mu.Lock()
		c.pairingToken = ""
		c.mu.Unlock()
		c.apply(ctx, EventAuthenticated)

	case chat.EventReady:
		c.logger.Info("Session ready")
		c.apply(ctx, EventReady)

	case chat.EventDisconnected:
		c.logger.Warn("Session disconnected", zap.String("reason", ev.Reason))
		c.apply(ctx, EventDisconnected)

	case chat.EventCommand:
		if ev.Command == nil {
			return
		}
		// Synchronous admission keeps commands in event order; the
		// queue sends rejection notices in the background.
		_ = c.queue.Admit(ctx, *ev.Command)
	}
}

// apply runs one transition and executes its actions.
func (c *Controller) apply(ctx context.Context, ev Event) {
	c.mu.Lock()
	next, acts := Transition(c.state, ev, c.snap)
	c.state = next

	if acts.IncrementAttempt {
		c.snap.AttemptCount++
	}
	if acts.ResetAttempts {
		now := time.Now().UTC()
		c.snap.AttemptCount = 0
		c.snap.ForceFreshPairing = false
		c.snap.LastSuccessAt = &now
	}
	if acts.ForceFresh {
		c.snap.ForceFreshPairing = true
	}
	attempts := c.snap.AttemptCount
	c.mu.Unlock()

	if c.metrics != nil {
		if acts.IncrementAttempt {
			c.metrics.RecoveryAttempts.Inc()
		}
		if acts.ForceFresh {
			c.metrics.FreshPairings.Inc()
		}
	}
	if acts.ForceFresh {
		c.logger.Warn("Restore attempts exhausted, next cycle pairs fresh",
			zap.Int("attempts", attempts),
		)
	}

	c.notifyStatus()

	if acts.StartInit {
		go c.initialize(ctx)
	}
	if acts.Backup {
		go c.backup(ctx)
	}
	if acts.ClearRemote || acts.ScheduleReinit {
		go func() {
			if acts.ClearRemote {
				c.clearRemote(ctx)
			}
			if acts.ScheduleReinit {
				select {
				case <-time.After(c.cfg.ReconnectBackoff):
				case <-ctx.Done():
					return
				}
				c.apply(ctx, EventInitialize)
			}
		}()
	}
}

// initialize runs one restore-or-pair cycle. A boolean guard keeps a
// single cycle in flight; concurrent requests are dropped, not queued.
func (c *Controller) initialize(ctx context.Context) {
	c.mu.Lock()
	if c.initInFlight {
		c.mu.Unlock()
		return
	}
	c.initInFlight = true
	force := c.snap.ForceFreshPairing
	c.restoring = false
	c.restoreFailed = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.initInFlight = false
		c.mu.Unlock()
	}()

	switch {
	case force:
		// Fresh pairing: any leftover local profile would let the
		// driver resume the very session we are abandoning.
		if err := os.RemoveAll(c.cfg.WorkingDir); err != nil {
			c.logger.Warn("Failed to clear working directory", zap.Error(err))
		}
	case c.localSessionPresent():
		c.logger.Info("Local session present, skipping remote restore")
	default:
		c.restore(ctx)
	}

	if err := c.driver.Start(ctx); err != nil {
		c.logger.Error("Driver start failed", zap.Error(err))
		c.apply(ctx, EventFatal)
	}
}

// localSessionPresent reports whether the working directory already
// holds a structurally valid session.
func (c *Controller) localSessionPresent() bool {
	return c.archiver.Verify(c.cfg.WorkingDir) == nil
}

// restore pulls the remote blob into the working directory. Failures
// mark the cycle but never abort it: a failed restore degrades to
// fresh pairing, not to a dead bot.
func (c *Controller) restore(ctx context.Context) {
	c.setRestoring(true)
	defer c.setRestoring(false)

	blob, err := c.sessions.Extract(ctx, c.cfg.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		c.logger.Info("No remote session blob, pairing fresh",
			zap.String("session_id", c.cfg.SessionID),
		)
		return
	}
	if err != nil {
		c.markRestoreFailed("extract", err)
		return
	}

	if err := c.archiver.Unpack(blob, c.cfg.WorkingDir); err != nil {
		c.markRestoreFailed("unpack", err)
		// A partial profile is worse than none.
		if rmErr := os.RemoveAll(c.cfg.WorkingDir); rmErr != nil {
			c.logger.Warn("Failed to clear partial restore", zap.Error(rmErr))
		}
		return
	}

	if c.metrics != nil {
		c.metrics.SessionsRestored.Inc()
	}
	c.logger.Info("Session restored from remote store",
		zap.String("session_id", c.cfg.SessionID),
		zap.Int("bytes", len(blob)),
	)
}

func (c *Controller) markRestoreFailed(stage string, err error) {
	c.mu.Lock()
	c.restoreFailed = true
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RestoreFailures.Inc()
	}
	c.logger.Warn("Session restore failed",
		zap.String("stage", stage),
		zap.Error(err),
	)
}

func (c *Controller) setRestoring(v bool) {
	c.mu.Lock()
	c.restoring = v
	c.mu.Unlock()
	c.notifyStatus()
}

// backup packs the working directory and saves it remotely. Runs
// asynchronously after ready; failures are logged, never fatal.
func (c *Controller) backup(ctx context.Context) {
	if err := c.saveBackup(ctx); err != nil {
		c.logger.Warn("Session backup failed", zap.Error(err))
	}
}

// saveBackup runs one pack-and-save round. Each round gets its own
// backup ID so save log lines can be correlated across retries.
func (c *Controller) saveBackup(ctx context.Context) error {
	bid := id.NewBackupID()

	blob, err := c.archiver.Pack(c.cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if err := c.sessions.Save(ctx, session.SaveRequest{
		SessionID: c.cfg.SessionID,
		Blob:      blob,
	}); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if c.metrics != nil {
		c.metrics.SessionsSaved.Inc()
	}
	c.logger.Info("Session backup saved",
		zap.String("backup_id", bid.String()),
		zap.String("session_id", c.cfg.SessionID),
		zap.Int("bytes", len(blob)),
	)
	return nil
}

// clearRemote deletes the persisted remote session.
func (c *Controller) clearRemote(ctx context.Context) {
	if err := c.sessions.Delete(ctx, c.cfg.SessionID); err != nil {
		c.logger.Warn("Failed to clear remote session",
			zap.String("session_id", c.cfg.SessionID),
			zap.Error(err),
		)
	}
}

// BackupNow packs and saves synchronously, for the manual dashboard
// trigger.
func (c *Controller) BackupNow(ctx context.Context) error {
	return c.saveBackup(ctx)
}

// RestoreNow stops the driver, force-restores from the remote blob,
// and starts a new cycle. Unlike the automatic path it restores even
// when a local session is present.
func (c *Controller) RestoreNow(ctx context.Context) error {
	if err := c.driver.Stop(ctx); err != nil {
		c.logger.Warn("Driver stop failed before restore", zap.Error(err))
	}

	c.setRestoring(true)
	blob, err := c.sessions.Extract(ctx, c.cfg.SessionID)
	if err != nil {
		c.markRestoreFailed("extract", err)
		c.setRestoring(false)
		return err
	}
	if err := c.archiver.Unpack(blob, c.cfg.WorkingDir); err != nil {
		c.markRestoreFailed("unpack", err)
		c.setRestoring(false)
		return err
	}
	c.setRestoring(false)

	if c.metrics != nil {
		c.metrics.SessionsRestored.Inc()
	}
	c.apply(ctx, EventInitialize)
	return nil
}

// ForceFreshPairing abandons the current session entirely: local and
// remote state are cleared and the next cycle pairs from scratch. Also
// the hard-quota hook for the watchdog.
func (c *Controller) ForceFreshPairing(ctx context.Context) {
	c.mu.Lock()
	c.snap.ForceFreshPairing = true
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.FreshPairings.Inc()
	}
	c.logger.Warn("Fresh pairing forced")

	if err := c.driver.Stop(ctx); err != nil {
		c.logger.Warn("Driver stop failed", zap.Error(err))
	}
	c.clearRemote(ctx)
	c.apply(ctx, EventInitialize)
}

// Status reports the aggregate dashboard snapshot.
func (c *Controller) Status() types.BotStatus {
	qs := c.queue.Status()

	c.mu.Lock()
	defer c.mu.Unlock()
	return types.BotStatus{
		Status:          c.statusStringLocked(),
		QueueDepth:      qs.Depth,
		Processing:      qs.Processing,
		RestoreAttempts: c.snap.AttemptCount,
		ForceFresh:      c.snap.ForceFreshPairing,
		LastReadyAt:     c.snap.LastSuccessAt,
	}
}

// PairingToken returns the last issued pairing token, or empty once
// authentication has consumed it.
func (c *Controller) PairingToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingToken
}

// statusStringLocked maps machine state plus restore flags onto the
// dashboard vocabulary. Callers hold c.mu.
func (c *Controller) statusStringLocked() string {
	switch c.state {
	case StateReady:
		return types.StatusReady
	case StateAwaitingPairing:
		return types.StatusAwaitingPairing
	case StateAuthenticating:
		return types.StatusAuthenticating
	case StateInitializing:
		if c.restoring {
			return types.StatusRestoring
		}
		if c.restoreFailed {
			return types.StatusRestoreFailed
		}
		return types.StatusDisconnected
	default:
		if c.restoreFailed {
			return types.StatusRestoreFailed
		}
		return types.StatusDisconnected
	}
}

func (c *Controller) notifyStatus() {
	if c.notifier == nil {
		return
	}
	c.mu.Lock()
	status := c.statusStringLocked()
	c.mu.Unlock()
	c.notifier.NotifyStatus(status)
}
