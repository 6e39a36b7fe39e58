// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build nats

package eventstream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/mpellar/vigil/internal/metrics"
)

// Publisher wraps a Watermill NATS publisher with reconnection handling
// and event serialization. It implements the monitor's EventPublisher.
type Publisher struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	mu        sync.RWMutex
	closed    bool
}

// NewPublisher creates a JetStream publisher. Message IDs feed the stream's
// duplicate window, so republished events collapse server-side.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
		natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
			logger.Error("NATS error", err, watermill.LogFields{
				"subject": sub.Subject,
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // Stream is pre-created by StreamInitializer
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		logger:    logger,
	}, nil
}

// Publish sends a message to the given topic. The message UUID becomes the
// Nats-Msg-Id when no explicit ID is set.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return err
	}
	metrics.RecordNATSPublish()
	return nil
}

// PublishSessionEvent serializes and publishes a session event to its
// playback.<type> subject. The event's dedupe key rides as the message ID,
// so the same logical transition published twice lands once.
func (p *Publisher) PublishSessionEvent(ctx context.Context, ev *SessionEvent) error {
	ev.SetDedupeKey()

	data, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(ev.ID.String(), data)
	msg.Metadata.Set("event_type", ev.Type)
	msg.Metadata.Set("dedupe_key", ev.DedupeKey)
	msg.Metadata.Set("server_id", ev.ServerID)
	if ev.UserID != 0 {
		msg.Metadata.Set("user_id", strconv.Itoa(ev.UserID))
	}
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.DedupeKey)

	return p.Publish(ctx, ev.Topic(), msg)
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}

// WatermillPublisher exposes the underlying publisher for Watermill
// components that need the native interface (poison queue middleware).
func (p *Publisher) WatermillPublisher() message.Publisher {
	return p.publisher
}
