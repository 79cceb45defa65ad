// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// BadgerConfig configures the persistent cache backend.
type BadgerConfig struct {
	// Dir is the on-disk location of the Badger value log and LSM tree.
	// Ignored when InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk. Used in tests and for
	// deployments that only want cross-job (not cross-restart) reuse.
	InMemory bool

	// Logger receives Badger's internal log output. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a disk-backed configuration rooted at dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{Dir: dir}
}

// InMemoryBadgerConfig returns a configuration that keeps everything in
// memory.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// BadgerCache stores vision evidence as JSON values keyed by content
// digest. Inflight coalescing matches MemoryCache: concurrent misses on
// one key compute once.
type BadgerCache struct {
	db       *badger.DB
	mu       sync.Mutex
	inflight map[string]*inflightCall
}

var _ Cache = (*BadgerCache)(nil)

// NewBadgerCache opens the Badger database described by cfg.
func NewBadgerCache(cfg BadgerConfig) (*BadgerCache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(&badgerSlogAdapter{logger: logger.With("component", "viscache")})
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open vision cache: %w", err)
	}
	return &BadgerCache{
		db:       db,
		inflight: make(map[string]*inflightCall),
	}, nil
}

// GetOrCompute implements Cache.
func (c *BadgerCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (datatypes.VisionEvidence, bool, error) {
	if ev, ok, err := c.get(key); err != nil {
		return datatypes.VisionEvidence{}, false, err
	} else if ok {
		return ev, true, nil
	}

	c.mu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return datatypes.VisionEvidence{}, false, call.err
			}
			return call.ev, true, nil
		case <-ctx.Done():
			return datatypes.VisionEvidence{}, false, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.ev, call.err = compute(ctx)
	if call.err == nil {
		call.err = c.put(key, call.ev)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)

	return call.ev, false, call.err
}

func (c *BadgerCache) get(key string) (datatypes.VisionEvidence, bool, error) {
	var ev datatypes.VisionEvidence
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ev)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.VisionEvidence{}, false, nil
	}
	if err != nil {
		return datatypes.VisionEvidence{}, false, fmt.Errorf("vision cache read: %w", err)
	}
	return ev, true, nil
}

func (c *BadgerCache) put(key string, ev datatypes.VisionEvidence) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("vision cache encode: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("vision cache write: %w", err)
	}
	return nil
}

// Close releases the underlying Badger database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// =============================================================================
// Badger Logger Adapter
// =============================================================================

// badgerSlogAdapter routes Badger's printf-style logging into slog.
type badgerSlogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerSlogAdapter)(nil)

func (a *badgerSlogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *badgerSlogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *badgerSlogAdapter) Infof(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

func (a *badgerSlogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
