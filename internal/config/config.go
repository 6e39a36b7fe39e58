// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

// Package config loads and validates Vigil's runtime configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables (highest priority). See Load in
// koanf.go for the exact precedence and the env-name mapping table.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the Vigil server.
//
// Thread safety: Config is immutable after Load() and safe for concurrent
// reads from every component.
type Config struct {
	Plex          PlexConfig          `koanf:"plex"`
	Monitor       MonitorConfig       `koanf:"monitor"`
	Database      DatabaseConfig      `koanf:"database"`
	Server        ServerConfig        `koanf:"server"`
	API           APIConfig           `koanf:"api"`
	NATS          NATSConfig          `koanf:"nats"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Newsletter    NewsletterConfig    `koanf:"newsletter"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// PlexConfig holds the Plex Media Server connection settings. This is the
// one upstream Vigil watches; everything else in the system is derived from
// what this connection reports.
//
// Environment Variables:
//   - PLEX_URL: Plex Media Server URL (e.g. http://localhost:32400) [required]
//   - PLEX_TOKEN: X-Plex-Token for authentication [required]
//   - PLEX_SERVER_ID: stable identifier recorded on events (default: derived
//     from the server's machine identifier at startup)
//   - PLEX_TIMEOUT: per-request HTTP timeout (default: 30s)
//   - PLEX_RATE_LIMIT: client-side request budget per second (default: 4)
type PlexConfig struct {
	URL       string        `koanf:"url"`        // Plex Media Server URL (http://localhost:32400)
	Token     string        `koanf:"token"`      // X-Plex-Token
	ServerID  string        `koanf:"server_id"`  // Stable server identifier; auto-filled from /identity when empty
	Timeout   time.Duration `koanf:"timeout"`    // HTTP client timeout per request
	RateLimit float64       `koanf:"rate_limit"` // Requests per second allowed against the PMS API (0 = unlimited)
}

// MonitorConfig tunes the session-activity monitor: the poll loop that
// watches /status/sessions, tracks play/pause/resume/stop transitions, and
// turns finished sessions into history records.
//
// Environment Variables:
//   - MONITOR_POLL_INTERVAL: session poll cadence (default: 15s, min: 5s)
//   - MONITOR_RECENTLY_ADDED_INTERVAL: recently-added poll cadence (default: 5m)
//   - MONITOR_RECENTLY_ADDED_SETTLE: batch window before on_created fires,
//     so a season of episodes notifies once (default: 10m)
//   - MONITOR_WATCHED_PERCENT_MOVIE / _EPISODE / _TRACK: watched thresholds
//     (defaults: 85, 85, 50)
//   - MONITOR_GROUPING_WINDOW: resumed views of the same item within this
//     window share a history group (default: 6h)
//   - MONITOR_CONCURRENT_THRESHOLD: per-user stream count that triggers
//     on_concurrent (default: 0 = disabled)
//   - MONITOR_SERVER_DOWN_THRESHOLD: consecutive failed polls before
//     on_server_down fires (default: 3)
type MonitorConfig struct {
	PollInterval          time.Duration `koanf:"poll_interval"`
	RecentlyAddedInterval time.Duration `koanf:"recently_added_interval"`
	RecentlyAddedSettle   time.Duration `koanf:"recently_added_settle"`

	// Watched thresholds are integer percentages of the item's duration.
	// A session crossing its media type's threshold fires on_watched once
	// and marks the history record watched.
	WatchedPercentMovie   int `koanf:"watched_percent_movie"`
	WatchedPercentEpisode int `koanf:"watched_percent_episode"`
	WatchedPercentTrack   int `koanf:"watched_percent_track"`

	GroupingWindow      time.Duration `koanf:"grouping_window"`
	ConcurrentThreshold int           `koanf:"concurrent_threshold"`
	ServerDownThreshold int           `koanf:"server_down_threshold"`

	// SeenSessionTTL bounds how long completed session keys are remembered
	// to suppress duplicate history inserts across poller restarts.
	SeenSessionTTL time.Duration `koanf:"seen_session_ttl"`
}

// DatabaseConfig holds the embedded DuckDB settings.
//
// Environment Variables:
//   - DUCKDB_PATH: database file path (default: /data/vigil.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory cap, e.g. "2GB" (default: 2GB)
//   - DUCKDB_THREADS: worker threads, 0 = NumCPU (default: 0)
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`                  // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"` // DuckDB default true; false trades ordering for memory
	SkipIndexes            bool   `koanf:"skip_indexes"`             // Skip index creation for fast test setup
}

// ServerConfig holds the HTTP server settings.
//
// Environment Variables:
//   - HTTP_HOST: bind address (default: 0.0.0.0)
//   - HTTP_PORT: listen port (default: 8282)
//   - HTTP_TIMEOUT: read/write timeout (default: 30s)
//   - ENVIRONMENT: development | production (default: development)
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// APIConfig holds JSON API settings: the API key the endpoints require,
// pagination bounds, CORS and rate limiting.
//
// Environment Variables:
//   - API_KEY: key required by all data endpoints (X-Api-Key header or
//     apikey query parameter). Empty disables auth; Load() refuses that in
//     production environment.
//   - API_DEFAULT_PAGE_SIZE / API_MAX_PAGE_SIZE (defaults: 25 / 1000)
//   - CORS_ORIGINS: comma-separated allowed origins (default: none)
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW (defaults: 100 / 1m)
//   - DISABLE_RATE_LIMIT: turn rate limiting off (default: false)
type APIConfig struct {
	Key               string        `koanf:"key"`
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// NATSConfig holds the event-stream settings. Session lifecycle events flow
// through an embedded NATS JetStream instance via Watermill; the notifier
// consumes them. When disabled (or when the binary is built without the
// nats tag) the monitor dispatches notifications directly instead.
//
// Environment Variables:
//   - NATS_ENABLED (default: true)
//   - NATS_URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: run the embedded server (default: true)
//   - NATS_STORE_DIR (default: /data/nats/jetstream)
//   - NATS_MAX_MEMORY / NATS_MAX_STORE: JetStream caps in bytes
//   - NATS_RETENTION_DAYS: stream retention (default: 7)
//   - NATS_DURABLE_NAME / NATS_QUEUE_GROUP (defaults: vigil-notifier / notifiers)
//   - NATS_SUBSCRIBERS: concurrent consumers (default: 2)
//   - NATS_ROUTER_*: Watermill router middleware tuning (see fields)
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamRetentionDays int    `koanf:"stream_retention_days"`
	DurableName         string `koanf:"durable_name"`
	QueueGroup          string `koanf:"queue_group"`
	SubscribersCount    int    `koanf:"subscribers_count"`

	// Watermill router middleware stack.
	RouterRetryCount           int           `koanf:"router_retry_count"`             // Max redeliveries before poison queue (default: 3)
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`  // First backoff step (default: 100ms)
	RouterThrottlePerSecond    int           `koanf:"router_throttle_per_second"`     // 0 = unlimited
	RouterDeduplicationEnabled bool          `koanf:"router_deduplication_enabled"`   // Message-ID dedup in the router
	RouterDeduplicationTTL     time.Duration `koanf:"router_deduplication_ttl"`       // Dedup memory window (default: 5m)
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`    // Route dead messages to the poison topic
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`      // Default: dlq.playback
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`           // Graceful shutdown bound (default: 30s)
}

// NotificationsConfig holds notifier dispatch settings. Individual notifier
// definitions (triggers, conditions, channel settings) live in the database
// and are managed through the API; this section only tunes the machinery.
//
// Environment Variables:
//   - NOTIFY_ENABLED (default: true)
//   - NOTIFY_OUTBOX_PATH: badger journal directory (default: /data/outbox)
//   - NOTIFY_MAX_ATTEMPTS: delivery attempts before drop (default: 5)
//   - NOTIFY_MAX_AGE: pending entry lifetime before drop (default: 24h)
//   - NOTIFY_DEDUPE_WINDOW: minimum gap between identical trigger firings
//     for one session (default: 90s)
type NotificationsConfig struct {
	Enabled      bool          `koanf:"enabled"`
	OutboxPath   string        `koanf:"outbox_path"`
	MaxAttempts  int           `koanf:"max_attempts"`
	MaxAge       time.Duration `koanf:"max_age"`
	DedupeWindow time.Duration `koanf:"dedupe_window"`
}

// NewsletterConfig holds the recently-added digest scheduler settings.
// Schedules themselves are stored in the database.
//
// Environment Variables:
//   - NEWSLETTER_ENABLED (default: false)
//   - NEWSLETTER_CHECK_INTERVAL: due-schedule poll cadence (default: 1m)
//   - NEWSLETTER_MAX_CONCURRENT: parallel deliveries (default: 3)
//   - NEWSLETTER_EXECUTION_TIMEOUT: per-newsletter bound (default: 5m)
//   - NEWSLETTER_SERVER_NAME: name used in digest templates (default: Plex)
type NewsletterConfig struct {
	Enabled                 bool          `koanf:"enabled"`
	CheckInterval           time.Duration `koanf:"check_interval"`
	MaxConcurrentDeliveries int           `koanf:"max_concurrent_deliveries"`
	ExecutionTimeout        time.Duration `koanf:"execution_timeout"`
	ServerName              string        `koanf:"server_name"`
}

// LoggingConfig holds logger settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace|debug|info|warn|error (default: info)
//   - LOG_FORMAT: json|console (default: json)
//   - LOG_CALLER: include file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks required fields and cross-field constraints. Called by
// Load(); exposed for tests and for re-validation after a config reload.
func (c *Config) Validate() error {
	if err := c.validatePlex(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePlex() error {
	if c.Plex.URL == "" {
		return fmt.Errorf("PLEX_URL is required")
	}
	if err := validateHTTPURL(c.Plex.URL, "PLEX_URL"); err != nil {
		return err
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("PLEX_TOKEN is required")
	}
	if c.Plex.Timeout <= 0 {
		return fmt.Errorf("PLEX_TIMEOUT must be positive, got %s", c.Plex.Timeout)
	}
	if c.Plex.RateLimit < 0 {
		return fmt.Errorf("PLEX_RATE_LIMIT must be >= 0, got %g", c.Plex.RateLimit)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollInterval < 5*time.Second {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be at least 5s, got %s", c.Monitor.PollInterval)
	}
	for _, t := range []struct {
		name  string
		value int
	}{
		{"MONITOR_WATCHED_PERCENT_MOVIE", c.Monitor.WatchedPercentMovie},
		{"MONITOR_WATCHED_PERCENT_EPISODE", c.Monitor.WatchedPercentEpisode},
		{"MONITOR_WATCHED_PERCENT_TRACK", c.Monitor.WatchedPercentTrack},
	} {
		if t.value < 1 || t.value > 100 {
			return fmt.Errorf("%s must be between 1 and 100, got %d", t.name, t.value)
		}
	}
	if c.Monitor.ServerDownThreshold < 1 {
		return fmt.Errorf("MONITOR_SERVER_DOWN_THRESHOLD must be at least 1, got %d", c.Monitor.ServerDownThreshold)
	}
	if c.Monitor.ConcurrentThreshold < 0 {
		return fmt.Errorf("MONITOR_CONCURRENT_THRESHOLD must be >= 0, got %d", c.Monitor.ConcurrentThreshold)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Key == "" && c.Server.Environment == "production" {
		return fmt.Errorf("API_KEY is required when ENVIRONMENT=production")
	}
	if c.API.Key != "" && len(c.API.Key) < 16 {
		return fmt.Errorf("API_KEY must be at least 16 characters, got %d", len(c.API.Key))
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be between 1 and API_MAX_PAGE_SIZE (%d), got %d",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if c.NATS.StreamRetentionDays < 1 {
		return fmt.Errorf("NATS_RETENTION_DAYS must be at least 1, got %d", c.NATS.StreamRetentionDays)
	}
	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be at least 1, got %d", c.NATS.SubscribersCount)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if !c.Notifications.Enabled {
		return nil
	}
	if c.Notifications.OutboxPath == "" {
		return fmt.Errorf("NOTIFY_OUTBOX_PATH is required when NOTIFY_ENABLED=true")
	}
	if c.Notifications.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1, got %d", c.Notifications.MaxAttempts)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that a value parses as an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}

// Addr returns the server's host:port listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatchedPercentFor returns the watched threshold for a media type.
// Unknown types fall back to the movie threshold.
func (m *MonitorConfig) WatchedPercentFor(mediaType string) int {
	switch mediaType {
	case "episode":
		return m.WatchedPercentEpisode
	case "track":
		return m.WatchedPercentTrack
	default:
		return m.WatchedPercentMovie
	}
}
