// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
// The first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. These load first and are
// overridden by the config file and then the environment.
func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			URL:       "",
			Token:     "",
			ServerID:  "", // filled from /identity at startup when empty
			Timeout:   30 * time.Second,
			RateLimit: 4,
		},
		Monitor: MonitorConfig{
			PollInterval:          15 * time.Second,
			RecentlyAddedInterval: 5 * time.Minute,
			RecentlyAddedSettle:   10 * time.Minute,
			WatchedPercentMovie:   85,
			WatchedPercentEpisode: 85,
			WatchedPercentTrack:   50,
			GroupingWindow:        6 * time.Hour,
			ConcurrentThreshold:   0, // disabled
			ServerDownThreshold:   3,
			SeenSessionTTL:        24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:                   "/data/vigil.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8282,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			Key:               "",
			DefaultPageSize:   25,
			MaxPageSize:       1000,
			CORSOrigins:       []string{},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		NATS: NATSConfig{
			Enabled:             true,
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,  // 1GB
			MaxStore:            10 << 30, // 10GB
			StreamRetentionDays: 7,
			DurableName:         "vigil-notifier",
			QueueGroup:          "notifiers",
			SubscribersCount:    2,

			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterThrottlePerSecond:    0,
			RouterDeduplicationEnabled: true,
			RouterDeduplicationTTL:     5 * time.Minute,
			RouterPoisonQueueEnabled:   true,
			RouterPoisonQueueTopic:     "dlq.playback",
			RouterCloseTimeout:         30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled:      true,
			OutboxPath:   "/data/outbox",
			MaxAttempts:  5,
			MaxAge:       24 * time.Hour,
			DedupeWindow: 90 * time.Second,
		},
		Newsletter: NewsletterConfig{
			Enabled:                 false,
			CheckInterval:           time.Minute,
			MaxConcurrentDeliveries: 3,
			ExecutionTimeout:        5 * time.Minute,
			ServerName:              "Plex",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from three layers:
//  1. defaults (struct above)
//  2. optional YAML config file
//  3. environment variables (highest priority)
//
// The returned Config has passed Validate().
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// PLEX_URL -> plex.url, MONITOR_POLL_INTERVAL -> monitor.poll_interval,
	// and so on per envTransformFunc. Unmapped variables are skipped.
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive from the environment as plain strings.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice when it came from YAML.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Variables not listed here are ignored, which keeps unrelated environment
// noise (PATH, HOME, ...) out of the config tree.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Plex connection
		"plex_url":        "plex.url",
		"plex_token":      "plex.token",
		"plex_server_id":  "plex.server_id",
		"plex_timeout":    "plex.timeout",
		"plex_rate_limit": "plex.rate_limit",

		// Monitor
		"monitor_poll_interval":           "monitor.poll_interval",
		"monitor_recently_added_interval": "monitor.recently_added_interval",
		"monitor_recently_added_settle":   "monitor.recently_added_settle",
		"monitor_watched_percent_movie":   "monitor.watched_percent_movie",
		"monitor_watched_percent_episode": "monitor.watched_percent_episode",
		"monitor_watched_percent_track":   "monitor.watched_percent_track",
		"monitor_grouping_window":         "monitor.grouping_window",
		"monitor_concurrent_threshold":    "monitor.concurrent_threshold",
		"monitor_server_down_threshold":   "monitor.server_down_threshold",
		"monitor_seen_session_ttl":        "monitor.seen_session_ttl",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// API
		"api_key":               "api.key",
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"cors_origins":          "api.cors_origins",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"disable_rate_limit":    "api.rate_limit_disabled",

		// NATS / event stream
		"nats_enabled":               "nats.enabled",
		"nats_url":                   "nats.url",
		"nats_embedded":              "nats.embedded_server",
		"nats_store_dir":             "nats.store_dir",
		"nats_max_memory":            "nats.max_memory",
		"nats_max_store":             "nats.max_store",
		"nats_retention_days":        "nats.stream_retention_days",
		"nats_durable_name":          "nats.durable_name",
		"nats_queue_group":           "nats.queue_group",
		"nats_subscribers":           "nats.subscribers_count",
		"nats_router_retry_count":    "nats.router_retry_count",
		"nats_router_retry_interval": "nats.router_retry_initial_interval",
		"nats_router_throttle":       "nats.router_throttle_per_second",
		"nats_router_dedup_enabled":  "nats.router_deduplication_enabled",
		"nats_router_dedup_ttl":      "nats.router_deduplication_ttl",
		"nats_router_poison_enabled": "nats.router_poison_queue_enabled",
		"nats_router_poison_topic":   "nats.router_poison_queue_topic",
		"nats_router_close_timeout":  "nats.router_close_timeout",

		// Notifications
		"notify_enabled":       "notifications.enabled",
		"notify_outbox_path":   "notifications.outbox_path",
		"notify_max_attempts":  "notifications.max_attempts",
		"notify_max_age":       "notifications.max_age",
		"notify_dedupe_window": "notifications.dedupe_window",

		// Newsletter
		"newsletter_enabled":           "newsletter.enabled",
		"newsletter_check_interval":    "newsletter.check_interval",
		"newsletter_max_concurrent":    "newsletter.max_concurrent_deliveries",
		"newsletter_execution_timeout": "newsletter.execution_timeout",
		"newsletter_server_name":       "newsletter.server_name",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	// Unmapped keys return "" and are skipped by the provider.
	return ""
}

// WatchConfigFile watches path and invokes callback on every change. The
// callback receives the freshly loaded (and validated) config; load errors
// are delivered to onError and the previous config stays active.
func WatchConfigFile(path string, callback func(*Config), onError func(error)) error {
	f := file.Provider(path)
	return f.Watch(func(event interface{}, err error) {
		if err != nil {
			onError(fmt.Errorf("config watch error: %w", err))
			return
		}
		cfg, loadErr := Load()
		if loadErr != nil {
			onError(fmt.Errorf("config reload failed: %w", loadErr))
			return
		}
		callback(cfg)
	})
}
