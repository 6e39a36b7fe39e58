// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package outbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
)

// Errors returned by the journal.
var (
	// ErrJournalClosed is returned after Close.
	ErrJournalClosed = errors.New("outbox journal is closed")

	// ErrNilEnvelope is returned when a nil envelope is enqueued.
	ErrNilEnvelope = errors.New("envelope cannot be nil")

	// ErrEntryNotFound is returned when a key does not exist.
	ErrEntryNotFound = errors.New("outbox entry not found")
)

// Drop reasons for the outbox_dropped_total metric.
const (
	DropReasonMaxAttempts = "max_attempts"
	DropReasonMaxAge      = "max_age"
	DropReasonCorrupt     = "corrupt"
)

const keyPrefix = "nfy:"

// Envelope is one journaled notification: the rendered message plus enough
// provenance to re-deliver it and log the outcome.
type Envelope struct {
	// ID uniquely identifies the notification.
	ID uuid.UUID `json:"id"`

	// Key is the journal key, assigned by Enqueue. Empty until enqueued.
	Key string `json:"-"`

	// NotifierID selects the delivery channel configuration. The replay
	// path reloads the notifier so config edits apply to pending entries.
	NotifierID int64 `json:"notifier_id"`

	// Trigger is the trigger kind that produced this notification.
	Trigger string `json:"trigger"`

	// Rendered content.
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// Params is the event parameter map the message was rendered from,
	// forwarded to webhook payloads.
	Params map[string]string `json:"params,omitempty"`

	// Event provenance for the notification log.
	SessionKey string `json:"session_key,omitempty"`
	RatingKey  string `json:"rating_key,omitempty"`
	UserID     int    `json:"user_id,omitempty"`

	// Journal bookkeeping.
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Config holds journal settings.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without files. Tests only.
	InMemory bool

	// SyncWrites forces fsync on every write. The journal exists for
	// crash durability, so this defaults on.
	SyncWrites bool

	// MaxAttempts is the delivery attempt limit before an entry is dropped.
	MaxAttempts int

	// MaxAge is the pending-entry lifetime before an entry is dropped.
	MaxAge time.Duration

	// ReplayInterval is the cadence of the replay loop.
	ReplayInterval time.Duration

	// RetryBackoff is the base delay between attempts for one entry;
	// doubled per attempt, capped at 10x.
	RetryBackoff time.Duration

	// CloseTimeout bounds graceful shutdown of the Badger store.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults for the given directory.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		MaxAttempts:    5,
		MaxAge:         24 * time.Hour,
		ReplayInterval: 30 * time.Second,
		RetryBackoff:   30 * time.Second,
		CloseTimeout:   30 * time.Second,
	}
}

func (c *Config) validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("outbox path is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("outbox max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("outbox max age must be positive, got %s", c.MaxAge)
	}
	if c.ReplayInterval <= 0 {
		return fmt.Errorf("outbox replay interval must be positive, got %s", c.ReplayInterval)
	}
	return nil
}

// Journal is the BadgerDB-backed notification outbox.
type Journal struct {
	db     *badger.DB
	config Config

	// inFlight tracks keys currently being delivered, so the replay loop
	// and an inline dispatch never process the same entry at once. This is
	// a single-process service; no durable lease needed.
	inFlight sync.Map

	enqueued  atomic.Int64
	confirmed atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the journal at the configured path.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox store: %w", err)
	}

	j := &Journal{db: db, config: cfg}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int("max_attempts", cfg.MaxAttempts).
		Dur("max_age", cfg.MaxAge).
		Msg("Notification outbox opened")
	return j, nil
}

// Enqueue journals an envelope before its first delivery attempt, assigning
// its ID, timestamp and key as needed. The new entry starts claimed so the
// replay loop cannot race the caller's own delivery; the caller must
// Confirm it or Release its key.
func (j *Journal) Enqueue(ctx context.Context, env *Envelope) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	if env == nil {
		return ErrNilEnvelope
	}
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}
	env.Key = fmt.Sprintf("%s%020d:%s", keyPrefix, env.EnqueuedAt.UnixNano(), env.ID)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// Badger TTL is a backstop; the replay loop drops aged entries first.
	ttl := j.config.MaxAge + 24*time.Hour

	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(env.Key), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	j.inFlight.Store(env.Key, time.Now())
	j.enqueued.Add(1)
	metrics.OutboxEnqueued.Inc()
	return nil
}

// Confirm deletes a delivered entry and releases its claim.
func (j *Journal) Confirm(ctx context.Context, key string) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	err := j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		} else if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return err
	}

	j.inFlight.Delete(key)
	j.confirmed.Add(1)
	return nil
}

// Pending returns all journaled envelopes, oldest first. Entries whose
// value no longer unmarshals are dropped as corrupt.
func (j *Journal) Pending(ctx context.Context) ([]*Envelope, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil, ErrJournalClosed
	}
	j.mu.RUnlock()

	var envelopes []*Envelope
	var corrupt []string

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := string(item.Key())

			var env Envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				logging.Warn().Err(err).Str("key", key).Msg("Outbox entry does not unmarshal")
				corrupt = append(corrupt, key)
				continue
			}
			env.Key = key
			envelopes = append(envelopes, &env)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}

	for _, key := range corrupt {
		if err := j.Drop(ctx, key, DropReasonCorrupt); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to drop corrupt outbox entry")
		}
	}

	return envelopes, nil
}

// RecordAttempt bumps an entry's attempt count after a failed delivery.
func (j *Journal) RecordAttempt(ctx context.Context, key, lastError string) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	return j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var env Envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return fmt.Errorf("unmarshal envelope: %w", err)
		}

		env.Attempts++
		env.LastAttemptAt = time.Now().UTC()
		env.LastError = lastError

		data, err := json.Marshal(&env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

// Drop permanently removes an entry and counts the reason.
func (j *Journal) Drop(ctx context.Context, key, reason string) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	j.inFlight.Delete(key)
	metrics.RecordOutboxDrop(reason)
	return nil
}

// TryClaim marks a key as being delivered. Returns false when another
// goroutine already holds it. Callers must Release (Confirm and Drop
// release implicitly).
func (j *Journal) TryClaim(key string) bool {
	_, held := j.inFlight.LoadOrStore(key, time.Now())
	return !held
}

// Release clears a delivery claim.
func (j *Journal) Release(key string) {
	j.inFlight.Delete(key)
}

// Stats reports the journal's queue depth and the age of its oldest entry.
func (j *Journal) Stats(ctx context.Context) (depth int64, oldestAge time.Duration) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return 0, 0
	}
	j.mu.RUnlock()

	now := time.Now()
	if err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if depth == 0 {
				// Keys are time-ordered, so the first entry is the oldest.
				if ns, ok := keyTimestamp(string(it.Item().Key())); ok {
					oldestAge = now.Sub(time.Unix(0, ns))
				}
			}
			depth++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Outbox stats scan failed")
	}
	return depth, oldestAge
}

// keyTimestamp extracts the enqueue time from a journal key.
func keyTimestamp(key string) (int64, bool) {
	rest := strings.TrimPrefix(key, keyPrefix)
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return 0, false
	}
	ns, err := strconv.ParseInt(rest[:sep], 10, 64)
	if err != nil {
		return 0, false
	}
	return ns, true
}

// Close shuts the journal down, bounded by CloseTimeout.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	timeout := j.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	j.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- j.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close outbox store: %w", err)
		}
		logging.Info().Msg("Notification outbox closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("outbox close timeout after %s", timeout)
	}
}

// Config returns the journal configuration.
func (j *Journal) Config() Config {
	return j.config
}
