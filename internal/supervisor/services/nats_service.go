// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build nats

package services

import (
	"context"
	"fmt"
	"time"
)

// NATSComponentsRunner matches the NATSComponents lifecycle from
// cmd/server/nats_init.go without importing the main package.
type NATSComponentsRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// NATSComponentsService wraps the NATS event stream as a supervised
// service.
//
// It adapts the Start/Shutdown lifecycle to suture's Serve pattern:
//  1. Calls Start(ctx) to begin all NATS components
//  2. Waits for context cancellation
//  3. Calls Shutdown(ctx) for graceful cleanup
//
// The components include the embedded NATS server (if configured), the
// JetStream connection and publisher, and the Watermill router feeding
// the notification dispatcher.
//
// Example usage:
//
//	components, _ := InitNATS(cfg, dispatcher)
//	svc := services.NewNATSComponentsService(components)
//	tree.AddDeliveryService(svc)
type NATSComponentsService struct {
	components      NATSComponentsRunner
	shutdownTimeout time.Duration
	name            string
}

// NewNATSComponentsService creates a new NATS components service
// wrapper with a 10 second shutdown timeout.
func NewNATSComponentsService(components NATSComponentsRunner) *NATSComponentsService {
	return NewNATSComponentsServiceWithTimeout(components, 10*time.Second)
}

// NewNATSComponentsServiceWithTimeout creates a NATS service with a
// custom shutdown timeout.
func NewNATSComponentsServiceWithTimeout(components NATSComponentsRunner, shutdownTimeout time.Duration) *NATSComponentsService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSComponentsService{
		components:      components,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-components",
	}
}

// Serve implements suture.Service.
//
// If Start fails, the error is returned immediately, causing suture to
// restart the service according to its backoff policy.
func (s *NATSComponentsService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("NATS components start failed: %w", err)
	}

	<-ctx.Done()

	// Shutdown with timeout, using a fresh context since the original
	// is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.components.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *NATSComponentsService) String() string {
	return s.name
}
