// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package pms

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
)

// Ensure CircuitBreakerClient implements ClientInterface
var _ ClientInterface = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps Client with a circuit breaker so a dead or
// struggling Plex server does not absorb every poll cycle into a timeout.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout calculations. Tests exercise the wrapped client directly rather
// than racing the breaker's clock.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a Plex client guarded by a circuit breaker.
//
// Breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(cfg *config.PlexConfig) *CircuitBreakerClient {
	client := New(cfg)
	cbName := "plex-api"

	metrics.SetBreakerState(cbName, 0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.SetBreakerState(name, stateToFloat(to))
			metrics.RecordBreakerTransition(name, fromStr, toStr)
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// Client returns the wrapped client for callers that need to bypass the
// breaker, such as the startup identity probe.
func (cbc *CircuitBreakerClient) Client() *Client {
	return cbc.client
}

// State returns the breaker's current state name for health reporting.
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

// execute wraps a Plex API call with circuit breaker protection
func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordBreakerRequest(cbc.name, "rejected")
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.RecordBreakerRequest(cbc.name, "failure")
		}
		return nil, err
	}

	metrics.RecordBreakerRequest(cbc.name, "success")

	return result, nil
}

// castResult safely type-casts the circuit breaker result with error checking
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// castSlice handles operations that return slices rather than struct pointers.
func castSlice[T any](result interface{}, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.([]T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with circuit breaker protection.
func (cbc *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

// GetSessions retrieves active sessions with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetSessions(ctx context.Context) ([]Session, error) {
	return castSlice[Session](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetSessions(ctx)
	}))
}

// GetIdentity retrieves server identity with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetIdentity(ctx context.Context) (*IdentityContainer, error) {
	return castResult[IdentityContainer](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetIdentity(ctx)
	}))
}

// GetServerInfo retrieves the server summary with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetServerInfo(ctx context.Context) (*ServerInfoContainer, error) {
	return castResult[ServerInfoContainer](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetServerInfo(ctx)
	}))
}

// GetLibrarySections retrieves library sections with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetLibrarySections(ctx context.Context) ([]LibrarySection, error) {
	return castSlice[LibrarySection](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetLibrarySections(ctx)
	}))
}

// GetRecentlyAdded retrieves recently added items with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetRecentlyAdded(ctx context.Context, limit int) ([]LibraryMetadata, error) {
	return castSlice[LibraryMetadata](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetRecentlyAdded(ctx, limit)
	}))
}

// GetSectionRecentlyAdded retrieves one section's recently added items with
// circuit breaker protection.
func (cbc *CircuitBreakerClient) GetSectionRecentlyAdded(ctx context.Context, sectionID string, limit int) ([]LibraryMetadata, error) {
	return castSlice[LibraryMetadata](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetSectionRecentlyAdded(ctx, sectionID, limit)
	}))
}

// GetSectionItemCount retrieves one section's item count with circuit
// breaker protection.
func (cbc *CircuitBreakerClient) GetSectionItemCount(ctx context.Context, sectionID string) (int, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetSectionItemCount(ctx, sectionID)
	})
	if err != nil {
		return 0, err
	}
	count, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return count, nil
}

// GetAccounts retrieves server accounts with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetAccounts(ctx context.Context) ([]Account, error) {
	return castSlice[Account](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAccounts(ctx)
	}))
}

// GetMetadata retrieves one item's metadata with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetMetadata(ctx context.Context, ratingKey string) (*LibraryMetadata, error) {
	return castResult[LibraryMetadata](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetMetadata(ctx, ratingKey)
	}))
}

// TerminateSession stops a stream with circuit breaker protection.
func (cbc *CircuitBreakerClient) TerminateSession(ctx context.Context, sessionID, reason string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.TerminateSession(ctx, sessionID, reason)
	})
	return err
}
