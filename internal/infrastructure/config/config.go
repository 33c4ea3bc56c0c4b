package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Store      StoreConfig
	Recovery   RecoveryConfig
	Queue      QueueConfig
	Generation GenerationConfig
	Chat       ChatConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds dashboard HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SessionConfig identifies the bot session and its working directory.
type SessionConfig struct {
	ClientID   string `envconfig:"SESSION_CLIENT_ID" default:"whatsapp-bot"`
	Name       string `envconfig:"SESSION_NAME" default:"main"`
	WorkingDir string `envconfig:"SESSION_WORKING_DIR" default:"./.wwebjs_auth/session"`
}

// StoreConfig holds remote session store configuration.
type StoreConfig struct {
	PostgresDSN string `envconfig:"STORE_POSTGRES_DSN" default:""`

	// Blobs at or below SingleObjectThreshold are stored as one chunk;
	// larger blobs are split into ChunkSize parts.
	SingleObjectThreshold int64 `envconfig:"STORE_SINGLE_OBJECT_THRESHOLD" default:"20971520"`
	ChunkSize             int64 `envconfig:"STORE_CHUNK_SIZE" default:"8388608"`

	ChunkOpTimeout time.Duration `envconfig:"STORE_CHUNK_OP_TIMEOUT" default:"30s"`
	QuotaBytes     int64         `envconfig:"STORE_QUOTA_BYTES" default:"536870912"`
}

// RecoveryConfig governs the pairing/restore state machine.
type RecoveryConfig struct {
	MaxAttempts       int           `envconfig:"RECOVERY_MAX_ATTEMPTS" default:"3"`
	ReconnectBackoff  time.Duration `envconfig:"RECOVERY_RECONNECT_BACKOFF" default:"5s"`
	WatchdogInterval  time.Duration `envconfig:"RECOVERY_WATCHDOG_INTERVAL" default:"5m"`
	SoftQuotaRatio    float64       `envconfig:"RECOVERY_SOFT_QUOTA_RATIO" default:"0.75"`
	HardQuotaRatio    float64       `envconfig:"RECOVERY_HARD_QUOTA_RATIO" default:"0.90"`
	MinPurgeInterval  time.Duration `envconfig:"RECOVERY_MIN_PURGE_INTERVAL" default:"10m"`
	StaleSessionAfter time.Duration `envconfig:"RECOVERY_STALE_SESSION_AFTER" default:"720h"`
}

// QueueConfig governs command admission and processing.
type QueueConfig struct {
	MaxSize            int           `envconfig:"QUEUE_MAX_SIZE" default:"10"`
	MinCommandInterval time.Duration `envconfig:"QUEUE_MIN_COMMAND_INTERVAL" default:"3s"`
	InterItemPause     time.Duration `envconfig:"QUEUE_INTER_ITEM_PAUSE" default:"1s"`
	FetchLimit         int           `envconfig:"QUEUE_FETCH_LIMIT" default:"50"`
	MaxCachedMessages  int           `envconfig:"QUEUE_MAX_CACHED_MESSAGES" default:"30"`
	MaxTrackedGroups   int           `envconfig:"QUEUE_MAX_TRACKED_GROUPS" default:"64"`
}

// GenerationConfig holds the downstream generation API configuration.
type GenerationConfig struct {
	URL     string        `envconfig:"GENERATION_URL" default:"http://localhost:5678/webhook/generate"`
	Timeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"3m"`
}

// ChatConfig holds the chat-session sidecar configuration.
type ChatConfig struct {
	SidecarAddr string        `envconfig:"CHAT_SIDECAR_ADDR" default:"http://localhost:3000"`
	CallTimeout time.Duration `envconfig:"CHAT_CALL_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds dashboard API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SessionID is the composite remote-store key for this deployment.
func (c SessionConfig) SessionID() string {
	return fmt.Sprintf("%s-%s", c.ClientID, c.Name)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the subsystems cannot operate under.
func (c *Config) Validate() error {
	if c.Store.ChunkSize <= 0 {
		return fmt.Errorf("STORE_CHUNK_SIZE must be positive, got %d", c.Store.ChunkSize)
	}
	if c.Store.SingleObjectThreshold < c.Store.ChunkSize {
		return fmt.Errorf("STORE_SINGLE_OBJECT_THRESHOLD (%d) must be >= STORE_CHUNK_SIZE (%d)",
			c.Store.SingleObjectThreshold, c.Store.ChunkSize)
	}
	if c.Recovery.SoftQuotaRatio >= c.Recovery.HardQuotaRatio {
		return fmt.Errorf("RECOVERY_SOFT_QUOTA_RATIO must be below RECOVERY_HARD_QUOTA_RATIO")
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be positive, got %d", c.Queue.MaxSize)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Session: SessionConfig{
			ClientID:   "whatsapp-bot",
			Name:       "main",
			WorkingDir: "./.wwebjs_auth/session",
		},
		Store: StoreConfig{
			SingleObjectThreshold: 20 << 20,
			ChunkSize:             8 << 20,
			ChunkOpTimeout:        30 * time.Second,
			QuotaBytes:            512 << 20,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:       3,
			ReconnectBackoff:  5 * time.Second,
			WatchdogInterval:  5 * time.Minute,
			SoftQuotaRatio:    0.75,
			HardQuotaRatio:    0.90,
			MinPurgeInterval:  10 * time.Minute,
			StaleSessionAfter: 720 * time.Hour,
		},
		Queue: QueueConfig{
			MaxSize:            10,
			MinCommandInterval: 3 * time.Second,
			InterItemPause:     time.Second,
			FetchLimit:         50,
			MaxCachedMessages:  30,
			MaxTrackedGroups:   64,
		},
		Generation: GenerationConfig{
			URL:     "http://localhost:5678/webhook/generate",
			Timeout: 3 * time.Minute,
		},
		Chat: ChatConfig{
			SidecarAddr: "http://localhost:3000",
			CallTimeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
