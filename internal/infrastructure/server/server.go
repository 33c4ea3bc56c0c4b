package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apihttp "github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/api/http"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/api/middleware"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/chat"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/queue"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/recovery"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/session"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/store"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/config"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/providers/generation"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/ws"
)

// Server wires the bot backend together: remote store, session
// persistence, recovery controller, admission queue, and the dashboard
// HTTP/WebSocket surface.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics

	router  *gin.Engine
	httpSrv *http.Server

	remote     store.Store
	driver     *chat.RemoteDriver
	queue      *queue.Queue
	controller *recovery.Controller
	watchdog   *recovery.Watchdog

	cancel context.CancelFunc
}

// NewServer creates a server instance from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing bot backend",
		zap.String("instance_id", uuid.NewString()),
		zap.String("port", cfg.Server.Port),
		zap.String("session_id", cfg.Session.SessionID()),
		zap.String("sidecar", cfg.Chat.SidecarAddr),
	)

	metrics := monitoring.NewMetrics()

	// Remote store: Postgres when configured, in-memory otherwise. The
	// memory store loses sessions on restart, so it only suits dev.
	var remote store.Store
	if cfg.Store.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pg, err := store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect session store: %w", err)
		}
		remote = pg
		logger.Info("Connected to Postgres session store")
	} else {
		logger.Warn("No Postgres DSN configured, sessions will not survive restarts")
		remote = store.NewMemoryStore()
	}

	chunker := session.NewChunker(remote, cfg.Store.ChunkSize, cfg.Store.SingleObjectThreshold, cfg.Store.ChunkOpTimeout).
		WithMetrics(metrics)
	sessions := session.NewManager(remote, chunker, cfg.Store.QuotaBytes, logger)
	archiver := session.NewArchiver()

	driver := chat.NewRemoteDriver(cfg.Chat.SidecarAddr, cfg.Chat.CallTimeout, logger)
	gen := generation.New(cfg.Generation.URL, cfg.Generation.Timeout)

	q := queue.New(queue.Config{
		MaxSize:            cfg.Queue.MaxSize,
		MinCommandInterval: cfg.Queue.MinCommandInterval,
		InterItemPause:     cfg.Queue.InterItemPause,
		FetchLimit:         cfg.Queue.FetchLimit,
		MaxCachedMessages:  cfg.Queue.MaxCachedMessages,
		MaxTrackedGroups:   cfg.Queue.MaxTrackedGroups,
	}, driver, gen, logger).WithMetrics(metrics)

	controller := recovery.NewController(driver, sessions, archiver, q, recovery.Config{
		SessionID:        cfg.Session.SessionID(),
		WorkingDir:       cfg.Session.WorkingDir,
		MaxAttempts:      cfg.Recovery.MaxAttempts,
		ReconnectBackoff: cfg.Recovery.ReconnectBackoff,
	}, logger).WithMetrics(metrics)

	hub := ws.NewHub(logger).
		WithMetrics(metrics).
		WithSnapshot(controller.Status)
	controller.WithNotifier(hub)

	watchdog := recovery.NewWatchdog(remote, sessions, recovery.WatchdogConfig{
		ActiveSessionID:   cfg.Session.SessionID(),
		QuotaBytes:        cfg.Store.QuotaBytes,
		Interval:          cfg.Recovery.WatchdogInterval,
		SoftRatio:         cfg.Recovery.SoftQuotaRatio,
		HardRatio:         cfg.Recovery.HardQuotaRatio,
		MinPurgeInterval:  cfg.Recovery.MinPurgeInterval,
		StaleSessionAfter: cfg.Recovery.StaleSessionAfter,
	}, logger).
		WithMetrics(metrics).
		WithHardQuotaHook(controller.ForceFreshPairing)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(controller, q, sessions, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/queue", handlers.Queue)
	router.GET("/storage", handlers.Storage)

	router.POST("/session/backup", handlers.BackupSession)
	router.POST("/session/restore", handlers.RestoreSession)
	router.POST("/session/fresh", handlers.FreshPairing)

	router.GET("/stream", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized")

	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		router:     router,
		remote:     remote,
		driver:     driver,
		queue:      q,
		controller: controller,
		watchdog:   watchdog,
	}, nil
}

// Run starts the background loops and serves HTTP until Close.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.queue.Run(ctx)
	go s.watchdog.Run(ctx)
	go s.controller.Run(ctx)

	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down: stop accepting requests, stop the
// loops, take a final session backup, and release the store.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
	}

	// A final backup keeps the remote blob as fresh as possible; a
	// failure here is logged inside and never blocks shutdown.
	if err := s.controller.BackupNow(ctx); err != nil {
		s.logger.Warn("Final session backup failed", zap.Error(err))
	}

	if s.cancel != nil {
		s.cancel()
	}

	if err := s.driver.Stop(ctx); err != nil {
		s.logger.Warn("Driver stop failed", zap.Error(err))
	}
	s.remote.Close()

	s.logger.Sync()
	return nil
}
