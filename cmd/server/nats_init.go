// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build nats

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/eventstream"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/monitor"
	"github.com/mpellar/vigil/internal/notify"
)

// NATSComponents holds the event-stream pieces for lifecycle management:
// the optional embedded server, the JetStream publisher the monitor writes
// through, and the Watermill router running the notifier consumer.
type NATSComponents struct {
	server            *eventstream.EmbeddedServer
	natsConn          *natsgo.Conn
	streamInitializer *eventstream.StreamInitializer
	publisher         *eventstream.Publisher

	router           *eventstream.Router
	notifySubscriber *eventstream.Subscriber

	shutdownComplete chan struct{}
	mu               sync.Mutex
	running          bool
}

// InitNATS initializes the event stream when NATS_ENABLED=true. The
// returned components are started and stopped by the supervisor tree, not
// here.
//
// The notifier consumer is only registered when notification dispatch is
// enabled; with dispatch off, events still land on the stream for external
// consumers and age out with the retention window.
func InitNATS(cfg *config.Config, dispatcher *notify.Dispatcher) (*NATSComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("Event stream disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	logging.Info().Msg("Initializing event stream...")

	components := &NATSComponents{
		shutdownComplete: make(chan struct{}),
	}

	var natsURL string

	// Step 1: Embedded NATS server if enabled
	if cfg.NATS.EmbeddedServer {
		serverCfg := eventstream.ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		}

		server, err := eventstream.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		components.server = server
		natsURL = server.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	} else {
		natsURL = cfg.NATS.URL
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	// Step 2: Connect and ensure the stream exists
	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	components.natsConn = nc
	logging.Info().Msg("NATS connection established")

	js, err := jetstream.New(nc)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := eventstream.DefaultStreamConfig()
	streamCfg.MaxAge = time.Duration(cfg.NATS.StreamRetentionDays) * 24 * time.Hour

	streamInitializer, err := eventstream.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream initializer: %w", err)
	}
	components.streamInitializer = streamInitializer

	stream, err := streamInitializer.EnsureStream(context.Background())
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	streamInfo := stream.CachedInfo()
	logging.Info().
		Str("name", streamInfo.Config.Name).
		Strs("subjects", streamInfo.Config.Subjects).
		Dur("max_age", streamInfo.Config.MaxAge).
		Msg("JetStream stream ready")

	// Step 3: Publisher the monitor writes through
	publisher, err := eventstream.NewPublisher(eventstream.DefaultPublisherConfig(natsURL), nil)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, err
	}
	components.publisher = publisher
	logging.Info().Msg("Event publisher created")

	// Step 4: Router with middleware from config
	routerCfg := eventstream.RouterConfig{
		CloseTimeout:         cfg.NATS.RouterCloseTimeout,
		RetryMaxRetries:      cfg.NATS.RouterRetryCount,
		RetryInitialInterval: cfg.NATS.RouterRetryInitialInterval,
		RetryMaxInterval:     cfg.NATS.RouterRetryInitialInterval * 10,
		RetryMultiplier:      2.0,
		ThrottlePerSecond:    int64(cfg.NATS.RouterThrottlePerSecond),
		DeduplicationEnabled: cfg.NATS.RouterDeduplicationEnabled,
		DeduplicationTTL:     cfg.NATS.RouterDeduplicationTTL,
	}
	if cfg.NATS.RouterPoisonQueueEnabled {
		routerCfg.PoisonQueueTopic = cfg.NATS.RouterPoisonQueueTopic
	}

	var poisonPub message.Publisher
	if cfg.NATS.RouterPoisonQueueEnabled {
		poisonPub = publisher.WatermillPublisher()
	}

	router, err := eventstream.NewRouter(&routerCfg, poisonPub, nil)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create event router: %w", err)
	}
	components.router = router
	logging.Info().
		Int("retry", routerCfg.RetryMaxRetries).
		Bool("dedup", routerCfg.DeduplicationEnabled).
		Bool("poison", cfg.NATS.RouterPoisonQueueEnabled).
		Msg("Event router created")

	// Step 5: Notifier consumer
	if cfg.Notifications.Enabled && dispatcher != nil {
		subCfg := eventstream.DefaultSubscriberConfig(natsURL)
		subCfg.DurableName = cfg.NATS.DurableName
		subCfg.QueueGroup = cfg.NATS.QueueGroup
		subCfg.SubscribersCount = cfg.NATS.SubscribersCount
		// Bind to the existing stream so the wildcard topic (playback.>)
		// does not trigger AutoProvision with an invalid stream name.
		subCfg.StreamName = streamCfg.Name

		subscriber, err := eventstream.NewSubscriber(&subCfg, nil)
		if err != nil {
			components.Shutdown(context.Background())
			return nil, fmt.Errorf("create notifier subscriber: %w", err)
		}
		components.notifySubscriber = subscriber

		router.AddConsumerHandler(
			"notifier",
			"playback.>",
			subscriber,
			eventstream.ConsumerHandler("notifier", dispatcher.HandleEvent),
		)
		logging.Info().
			Str("durable", subCfg.DurableName).
			Str("queue_group", subCfg.QueueGroup).
			Msg("Notifier consumer registered with event router")
	} else {
		logging.Info().Msg("Notifier consumer skipped (notification dispatch disabled)")
	}

	components.mu.Lock()
	components.running = true
	components.mu.Unlock()

	logging.Info().Msg("Event stream initialized successfully")
	return components, nil
}

// Start runs the event router. Called by the supervisor after InitNATS.
func (c *NATSComponents) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if c.router != nil {
		logging.Info().Msg("Starting event router...")
		go func() {
			if err := c.router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("Event router stopped with error")
			}
		}()

		select {
		case <-c.router.Running():
			logging.Info().Msg("Event router started successfully")
		case <-ctx.Done():
			return fmt.Errorf("context canceled while starting event router: %w", ctx.Err())
		}
	}

	logging.Info().Msg("All event stream components started")
	return nil
}

// Shutdown gracefully stops the event stream.
//
// Shutdown order matters for clean termination:
//  1. Close the router first (drains the notifier handler)
//  2. Close the subscriber
//  3. Close the publisher
//  4. Close the NATS connection
//  5. Shutdown the embedded server last
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logging.Info().Msg("Shutting down event stream...")

	c.shutdownRouter()
	c.shutdownSubscriber()
	c.shutdownPublisher()
	c.shutdownConnection(ctx)

	close(c.shutdownComplete)
	logging.Info().Msg("Event stream shutdown complete")
}

// shutdownRouter stops the Watermill router.
func (c *NATSComponents) shutdownRouter() {
	if c.router == nil {
		return
	}
	if err := c.router.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing event router")
	}
	logging.Info().Msg("Event router stopped")
}

// shutdownSubscriber closes the notifier's JetStream subscriber.
func (c *NATSComponents) shutdownSubscriber() {
	if c.notifySubscriber == nil {
		return
	}
	if err := c.notifySubscriber.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing notifier subscriber")
	}
	logging.Info().Msg("Notifier subscriber closed")
}

// shutdownPublisher closes the event publisher.
func (c *NATSComponents) shutdownPublisher() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing event publisher")
	}
	logging.Info().Msg("Event publisher closed")
}

// shutdownConnection closes the NATS connection and embedded server.
func (c *NATSComponents) shutdownConnection(ctx context.Context) {
	if c.natsConn != nil {
		c.natsConn.Close()
		logging.Info().Msg("NATS connection closed")
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down NATS server")
		}
		logging.Info().Msg("Embedded NATS server stopped")
	}
}

// IsRunning returns whether the event stream components are active.
func (c *NATSComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// EventPublisher returns the stream publisher for wiring to the monitor.
// Returns nil if the event stream is not initialized.
func (c *NATSComponents) EventPublisher() monitor.EventPublisher {
	if c == nil || c.publisher == nil {
		return nil
	}
	return c.publisher
}
