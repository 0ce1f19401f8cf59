// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache memoizes diagnostic computations within and across runs.
//
// The cache is layered: a hot in-process map in front of an optional
// BadgerDB store on disk. Identical computations requested concurrently
// are collapsed through singleflight so the diagnostic runs exactly
// once. Errors are never cached at either layer; only successful values
// are worth remembering, and a transient failure must not poison later
// runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
	"github.com/AleutianAI/gridcheck/pkg/logging"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (diagnostic.Value, error)

// Config holds cache construction options.
type Config struct {
	// Dir is the BadgerDB directory. Empty disables the persistent
	// layer; the cache is then in-process only.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Testing only.
	InMemory bool

	// Logger receives cache lifecycle events. Nil uses the default.
	Logger *logging.Logger
}

// Cache is the layered diagnostic cache.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	hot    map[string]diagnostic.Value
	flight singleflight.Group
	db     *badger.DB
	logger *logging.Logger

	// Stats
	hotHits   int64
	storeHits int64
	misses    int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	// HotHits counts lookups served from the in-process map.
	HotHits int64 `json:"hot_hits"`

	// StoreHits counts lookups served from the persistent store.
	StoreHits int64 `json:"store_hits"`

	// Misses counts lookups that ran the diagnostic.
	Misses int64 `json:"misses"`
}

// Open creates a Cache. With cfg.Dir set (or InMemory), values survive
// in BadgerDB; otherwise only the in-process layer exists.
func Open(cfg Config) (*Cache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	c := &Cache{
		hot:    make(map[string]diagnostic.Value),
		logger: logger,
	}

	if cfg.Dir == "" && !cfg.InMemory {
		return c, nil
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	c.db = db
	logger.Debug("cache store opened", "dir", cfg.Dir, "in_memory", cfg.InMemory)
	return c, nil
}

// GetOrCompute returns the cached value for key, computing and storing
// it on a miss.
//
// # Description
//
// Lookup order is hot map, persistent store, compute. Concurrent calls
// for the same key are collapsed; exactly one compute runs and every
// caller gets its result. A compute error is returned to every waiting
// caller and nothing is stored.
//
// # Outputs
//
//   - diagnostic.Value: The cached or computed value.
//   - bool: True when served from a cache layer without computing.
//   - error: The compute error, or a store failure.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (diagnostic.Value, bool, error) {
	id := key.String()

	if value, ok := c.lookupHot(id); ok {
		atomic.AddInt64(&c.hotHits, 1)
		return value, true, nil
	}

	type outcome struct {
		value diagnostic.Value
		hit   bool
	}
	result, err, _ := c.flight.Do(id, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// populated the hot map while this one queued.
		if value, ok := c.lookupHot(id); ok {
			return outcome{value: value, hit: true}, nil
		}
		if value, ok := c.lookupStore(key); ok {
			c.storeHot(id, value)
			return outcome{value: value, hit: true}, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return outcome{}, err
		}
		c.storeHot(id, value)
		c.persist(key, value)
		return outcome{value: value, hit: false}, nil
	})
	if err != nil {
		return diagnostic.Value{}, false, err
	}

	out := result.(outcome)
	if out.hit {
		atomic.AddInt64(&c.storeHits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return out.value, out.hit, nil
}

// lookupHot reads the in-process layer.
func (c *Cache) lookupHot(id string) (diagnostic.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.hot[id]
	return value, ok
}

// storeHot writes the in-process layer.
func (c *Cache) storeHot(id string, value diagnostic.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot[id] = value
}

// lookupStore reads the persistent layer. Undecodable entries are
// treated as misses; the overwrite on recompute repairs them.
func (c *Cache) lookupStore(key Key) (diagnostic.Value, bool) {
	if c.db == nil {
		return diagnostic.Value{}, false
	}

	var value diagnostic.Value
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &value)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("cache store read failed", "key", key.Check, "error", err)
		}
		return diagnostic.Value{}, false
	}
	return value, true
}

// persist writes the persistent layer. A write failure degrades to a
// warning; the run already has the value in hand.
func (c *Cache) persist(key Key, value diagnostic.Value) {
	if c.db == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not serializable", "key", key.Check, "error", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), data)
	})
	if err != nil {
		c.logger.Warn("cache store write failed", "key", key.Check, "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		HotHits:   atomic.LoadInt64(&c.hotHits),
		StoreHits: atomic.LoadInt64(&c.storeHits),
		Misses:    atomic.LoadInt64(&c.misses),
	}
}

// Close releases the persistent store. Safe to call with no store.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
