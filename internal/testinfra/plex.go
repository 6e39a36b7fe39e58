// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPlexImage is the official Plex Media Server Docker image.
	DefaultPlexImage = "plexinc/pms-docker:latest"

	// DefaultPlexPort is the Plex Media Server API port.
	DefaultPlexPort = "32400"
)

// PlexContainer represents a running Plex Media Server container.
//
// The container starts unclaimed unless a claim token is supplied, which
// is enough for the endpoints Vigil probes without authentication
// (/identity) and for exercising the 401 paths of everything else.
type PlexContainer struct {
	testcontainers.Container
	URL string
}

// PlexOption configures the Plex container.
type PlexOption func(*plexConfig)

type plexConfig struct {
	image        string
	claimToken   string
	startTimeout time.Duration
}

// WithPlexImage sets a custom Plex Media Server Docker image.
func WithPlexImage(image string) PlexOption {
	return func(c *plexConfig) {
		c.image = image
	}
}

// WithClaimToken claims the server against a Plex account on first start.
// Tokens come from https://plex.tv/claim and expire after a few minutes,
// so claimed-server tests only make sense in locally driven runs.
func WithClaimToken(token string) PlexOption {
	return func(c *plexConfig) {
		c.claimToken = token
	}
}

// WithStartTimeout sets the timeout for waiting for the server to start.
func WithStartTimeout(timeout time.Duration) PlexOption {
	return func(c *plexConfig) {
		c.startTimeout = timeout
	}
}

// NewPlexContainer creates and starts a Plex Media Server container.
//
// Example:
//
//	ctx := context.Background()
//	plex, err := NewPlexContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer plex.Terminate(ctx)
//
//	client := pms.New(&config.PlexConfig{URL: plex.URL})
//	identity, err := client.GetIdentity(ctx)
func NewPlexContainer(ctx context.Context, opts ...PlexOption) (*PlexContainer, error) {
	cfg := &plexConfig{
		image:        DefaultPlexImage,
		startTimeout: 90 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	env := map[string]string{
		"TZ": "UTC",
	}
	if cfg.claimToken != "" {
		env["PLEX_CLAIM"] = cfg.claimToken
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultPlexPort + "/tcp"},
		Env:          env,
		// The identity endpoint answers without a token once the server
		// has finished its first-run setup.
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultPlexPort+"/tcp"),
			wait.ForHTTP("/identity").WithPort(DefaultPlexPort+"/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create plex container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, DefaultPlexPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &PlexContainer{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, port.Port()),
	}, nil
}

// Terminate stops and removes the Plex container.
func (c *PlexContainer) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

// EndpointURL returns the full URL for a server API path.
func (c *PlexContainer) EndpointURL(path string) string {
	return c.URL + path
}

// Logs returns the container logs for debugging.
func (c *PlexContainer) Logs(ctx context.Context) (string, error) {
	reader, err := c.Container.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("get logs: %w", err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return string(logs), fmt.Errorf("read logs: %w", err)
	}

	return string(logs), nil
}
