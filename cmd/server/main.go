// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mpellar/vigil/docs" // Generated swagger docs
	"github.com/mpellar/vigil/internal/api"
	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/monitor"
	"github.com/mpellar/vigil/internal/newsletter"
	"github.com/mpellar/vigil/internal/notify"
	"github.com/mpellar/vigil/internal/outbox"
	"github.com/mpellar/vigil/internal/pms"
	"github.com/mpellar/vigil/internal/supervisor"
	"github.com/mpellar/vigil/internal/supervisor/services"
	ws "github.com/mpellar/vigil/internal/websocket"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// startupProbeTimeout bounds the initial Plex identity probe. The monitor
// retries on its own cadence afterward, so an unreachable server at boot
// only delays attribution, never startup.
const startupProbeTimeout = 15 * time.Second

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Vigil with supervisor tree")
	api.SetVersion(version)

	logging.Info().
		Str("plex_url", cfg.Plex.URL).
		Str("db_path", cfg.Database.Path).
		Dur("poll_interval", cfg.Monitor.PollInterval).
		Msg("Configuration loaded")

	// Initialize DuckDB with schema migrations
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Initialize Plex client with circuit breaker so an unavailable server
	// cannot cascade into the poll loop or the API handlers.
	client := pms.NewCircuitBreakerClient(&cfg.Plex)

	// Resolve server identity once at startup. PLEX_SERVER_ID overrides;
	// otherwise the machine identifier from the server itself stamps every
	// history record and event.
	serverID := cfg.Plex.ServerID
	serverName := cfg.Newsletter.ServerName
	probeCtx, probeCancel := context.WithTimeout(context.Background(), startupProbeTimeout)
	if info, err := client.GetServerInfo(probeCtx); err != nil {
		logging.Warn().Err(err).Msg("Failed to reach Plex server (monitor will retry)")
	} else {
		if serverID == "" {
			serverID = info.MachineIdentifier
		}
		if info.FriendlyName != "" {
			serverName = info.FriendlyName
		}
		logging.Info().
			Str("server_name", serverName).
			Str("server_id", serverID).
			Str("plex_version", info.Version).
			Msg("Connected to Plex server")
	}
	probeCancel()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter.
	// This bridges zerolog to slog for sutureslog compatibility.
	slogLogger := logging.NewSlogLogger()

	// Create supervisor tree
	tree, err := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Create WebSocket hub for real-time updates (before the monitor so
	// transitions can broadcast from the first poll)
	wsHub := ws.NewHub()

	// Create session monitor and its companion loops (no longer started
	// here - supervisor will start them)
	mon := monitor.New(client, db, cfg.Monitor, serverID, serverName)
	mon.SetBroadcaster(wsHub)
	watcher := monitor.NewRecentlyAddedWatcher(mon)
	refresher := monitor.NewRefresher(mon)

	// Open the notification outbox journal. Envelopes are journaled before
	// the first delivery attempt, so a crash mid-delivery replays instead
	// of losing the notification.
	var journal *outbox.Journal
	if cfg.Notifications.Enabled {
		journalCfg := outbox.DefaultConfig(cfg.Notifications.OutboxPath)
		if cfg.Notifications.MaxAttempts > 0 {
			journalCfg.MaxAttempts = cfg.Notifications.MaxAttempts
		}
		if cfg.Notifications.MaxAge > 0 {
			journalCfg.MaxAge = cfg.Notifications.MaxAge
		}
		journal, err = outbox.Open(journalCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open notification outbox")
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing notification outbox")
			}
		}()
	} else {
		logging.Info().Msg("Notification dispatch disabled (NOTIFY_ENABLED=false)")
	}

	// The dispatcher is created even when dispatch is disabled so the API
	// notifier-test endpoint keeps working; only the event-driven path and
	// the replay loop are gated.
	dispatcher := notify.NewDispatcher(db, cfg.Notifications, journal)
	dispatcher.SetBroadcaster(wsHub)

	// Newsletter scheduler. Constructed unconditionally so preview and
	// send-now through the API work; NEWSLETTER_ENABLED only gates the
	// automatic schedule loop.
	scheduler := newsletter.NewScheduler(db, cfg.Newsletter)

	handler := api.NewHandler(db, mon, client, cfg, wsHub)
	handler.SetDispatcher(dispatcher)
	handler.SetNewsletterScheduler(scheduler)

	// Initialize the event stream (optional - requires build with -tags nats).
	// Session events flow monitor -> JetStream -> notifier consumer; without
	// NATS the monitor hands events straight to the dispatcher.
	natsComponents, err := InitNATS(cfg, dispatcher)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event stream")
	}

	// Add NATS to supervisor tree (if enabled)
	AddNATSToSupervisor(tree, natsComponents)

	if pub := natsComponents.EventPublisher(); pub != nil {
		mon.SetEventPublisher(pub)
		logging.Info().Msg("Event publisher wired to session monitor")
	} else if cfg.Notifications.Enabled {
		mon.SetEventPublisher(notify.NewDirectPublisher(dispatcher))
		logging.Info().Msg("Monitor dispatching notifications in-process (event stream disabled)")
	}

	chiMw := api.NewChiMiddlewareFromAPIConfig(cfg.API)
	router := api.NewRouter(handler, chiMw)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Ingest layer: the poll loops that read from the Plex server
	tree.AddIngestService(mon)
	tree.AddIngestService(watcher)
	tree.AddIngestService(refresher)
	logging.Info().Msg("Session monitor, recently-added watcher and metadata refresher added to supervisor tree")

	// Delivery layer: everything that pushes data out
	tree.AddDeliveryService(services.NewWebSocketHubService(wsHub))
	if journal != nil {
		tree.AddDeliveryService(outbox.NewService(journal, dispatcher.DeliverEnvelope))
		logging.Info().Msg("Notification outbox replay loop added to supervisor tree")
	}
	if cfg.Newsletter.Enabled {
		tree.AddDeliveryService(scheduler)
		logging.Info().Dur("check_interval", cfg.Newsletter.CheckInterval).Msg("Newsletter scheduler added to supervisor tree")
	} else {
		logging.Info().Msg("Newsletter scheduling disabled (NEWSLETTER_ENABLED=false)")
	}

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
