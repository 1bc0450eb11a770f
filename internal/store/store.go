// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package store journals poller state in an embedded BadgerDB instance so an
// agent restart keeps the last snapshot and any in-flight call. A call placed
// before a crash can still be resolved and hung up after the process returns.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
)

// Fixed journal keys. The journal keeps at most one snapshot and one active
// call, so entries are overwritten in place rather than appended.
const (
	keySnapshot = "snapshot:latest"
	keyCall     = "call:active"
)

// ErrClosed is returned when the journal is used after Close.
var ErrClosed = errors.New("journal is closed")

// Config holds journal storage settings.
type Config struct {
	// Path is the directory where BadgerDB stores its files. It should be
	// on a durable filesystem, not tmpfs.
	Path string

	// SyncWrites forces fsync after every write. Slower, but a power cut
	// cannot lose the journaled call record.
	SyncWrites bool

	// Compression enables Snappy compression for stored values.
	Compression bool

	// GCInterval is the period between value-log garbage collection runs.
	// Zero disables the background GC loop.
	GCInterval time.Duration

	// GCRatio is the rewrite threshold handed to BadgerDB's value-log GC.
	// Zero falls back to 0.5.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for BadgerDB to flush.
	// Zero falls back to 30 seconds.
	CloseTimeout time.Duration
}

// DefaultConfig returns journal settings that favor durability.
func DefaultConfig() Config {
	return Config{
		Path:         "/data/journal",
		SyncWrites:   true,
		Compression:  true,
		GCInterval:   time.Hour,
		GCRatio:      0.5,
		CloseTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration before Open touches the filesystem.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("journal path is required")
	}
	if c.GCRatio < 0 || c.GCRatio >= 1 {
		return fmt.Errorf("journal gc ratio %v outside [0, 1)", c.GCRatio)
	}
	return nil
}

// Store is the BadgerDB-backed journal. It satisfies poller.Journal.
type Store struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open creates or reopens the journal database at cfg.Path and starts the
// background value-log GC loop when configured.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal config: %w", err)
	}
	if cfg.GCRatio == 0 {
		cfg.GCRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	// The journal holds two small values. Shrink BadgerDB's defaults so an
	// idle agent does not reserve hundreds of megabytes of mapped files.
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	s := &Store{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
	}
	if cfg.GCInterval > 0 {
		s.wg.Add(1)
		go s.gcLoop()
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("compression", cfg.Compression).
		Msg("Journal opened")
	return s, nil
}

// SaveSnapshot replaces the journaled snapshot with view.
func (s *Store) SaveSnapshot(view poller.View) error {
	data, err := json.Marshal(&view)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.put(keySnapshot, data)
}

// LoadSnapshot returns the journaled snapshot. The second return is false
// when no snapshot has been written yet.
func (s *Store) LoadSnapshot() (poller.View, bool, error) {
	var view poller.View
	found, err := s.get(keySnapshot, &view)
	if err != nil {
		return poller.View{}, false, err
	}
	return view, found, nil
}

// SaveCall journals the active call record so a restarted agent can still
// answer status lookups for the call and disconnect it.
func (s *Store) SaveCall(record poller.CallRecord) error {
	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}
	return s.put(keyCall, data)
}

// LoadCall returns the journaled active call, if any.
func (s *Store) LoadCall() (poller.CallRecord, bool, error) {
	var record poller.CallRecord
	found, err := s.get(keyCall, &record)
	if err != nil {
		return poller.CallRecord{}, false, err
	}
	return record, found, nil
}

// ClearCall removes the journaled call record after the call ends. Clearing
// an already-empty journal is not an error.
func (s *Store) ClearCall() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyCall))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// RunGC reclaims value-log space. It loops until BadgerDB reports nothing
// left to rewrite.
func (s *Store) RunGC() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log gc: %w", err)
		}
	}
}

func (s *Store) gcLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.RunGC(); err != nil && !errors.Is(err, ErrClosed) {
				logging.Warn().Err(err).Msg("Journal GC failed")
			}
		}
	}
}

// Close stops the GC loop and shuts BadgerDB down, waiting at most
// CloseTimeout for the final flush. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.cfg.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close journal db: %w", err)
		}
		logging.Info().Msg("Journal closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("journal close timed out after %v", timeout)
	}
}

func (s *Store) put(key string, data []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// get loads key into out. The bool is false when the key has never been
// written or was cleared.
func (s *Store) get(key string, out interface{}) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *Store) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Compile-time interface assertion
var _ poller.Journal = (*Store)(nil)
