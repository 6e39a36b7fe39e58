// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build integration

package testinfra

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// TestPlexContainer_Integration exercises the full container lifecycle.
// Requires Docker; skipped in environments without it.
func TestPlexContainer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	plex, err := NewPlexContainer(ctx,
		WithStartTimeout(2*time.Minute),
	)
	if err != nil {
		t.Fatalf("Failed to create Plex container: %v", err)
	}
	defer CleanupContainer(t, ctx, plex.Container)

	t.Logf("Plex container started at: %s", plex.URL)

	// The identity endpoint answers without a token.
	resp, err := http.Get(plex.EndpointURL("/identity"))
	if err != nil {
		logs, _ := plex.Logs(ctx)
		t.Fatalf("Failed to connect to Plex: %v\nContainer logs:\n%s", err, logs)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 from /identity, got %d", resp.StatusCode)
	}

	// Token-guarded endpoints reject unauthenticated requests.
	resp2, err := http.Get(plex.EndpointURL("/status/sessions"))
	if err != nil {
		t.Fatalf("Failed to query sessions endpoint: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401 from /status/sessions, got %d", resp2.StatusCode)
	}

	info, err := GetContainerInfo(ctx, plex.Container)
	if err != nil {
		t.Logf("Warning: failed to get container info: %v", err)
	} else {
		t.Logf("Container ID: %s, State: %s, Ports: %v", info.ID, info.State, info.Ports)
	}
}

// TestIsDockerAvailable always passes; it just reports Docker availability.
func TestIsDockerAvailable(t *testing.T) {
	available := IsDockerAvailable()
	t.Logf("Docker available: %v", available)
}

// TestPlexContainerOptions tests the option functions without Docker.
func TestPlexContainerOptions(t *testing.T) {
	cfg := &plexConfig{}
	WithPlexImage("custom-image:v1")(cfg)
	if cfg.image != "custom-image:v1" {
		t.Errorf("WithPlexImage: expected custom-image:v1, got %s", cfg.image)
	}

	cfg = &plexConfig{}
	WithClaimToken("claim-abc123")(cfg)
	if cfg.claimToken != "claim-abc123" {
		t.Errorf("WithClaimToken: expected claim-abc123, got %s", cfg.claimToken)
	}

	cfg = &plexConfig{}
	WithStartTimeout(5 * time.Minute)(cfg)
	if cfg.startTimeout != 5*time.Minute {
		t.Errorf("WithStartTimeout: expected 5m, got %v", cfg.startTimeout)
	}
}

// TestWaitForReady tests the polling helper without a container.
func TestWaitForReady(t *testing.T) {
	ctx := context.Background()

	t.Run("passes when check succeeds", func(t *testing.T) {
		if err := WaitForReady(ctx, nil, func() bool { return true }, time.Second); err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	})

	t.Run("times out when check never succeeds", func(t *testing.T) {
		err := WaitForReady(ctx, nil, func() bool { return false }, 100*time.Millisecond)
		if err != context.DeadlineExceeded {
			t.Errorf("Expected DeadlineExceeded, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitForReady(cctx, nil, func() bool { return false }, time.Minute)
		if err != context.Canceled {
			t.Errorf("Expected Canceled, got %v", err)
		}
	})
}
