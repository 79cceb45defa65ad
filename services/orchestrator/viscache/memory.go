// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viscache

import (
	"context"
	"sync"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// MemoryCache is a process-local cache with per-key inflight
// coalescing: concurrent misses on the same key run compute once and
// share the result.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]datatypes.VisionEvidence
	inflight map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	ev   datatypes.VisionEvidence
	err  error
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]datatypes.VisionEvidence),
		inflight: make(map[string]*inflightCall),
	}
}

// GetOrCompute implements Cache.
func (c *MemoryCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (datatypes.VisionEvidence, bool, error) {
	c.mu.Lock()
	if ev, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return ev, true, nil
	}
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return datatypes.VisionEvidence{}, false, call.err
			}
			// Computed by the coalesced leader; a hit from this
			// caller's perspective since it consumed no budget.
			return call.ev, true, nil
		case <-ctx.Done():
			return datatypes.VisionEvidence{}, false, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.ev, call.err = compute(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if call.err == nil {
		c.entries[key] = call.ev
	}
	c.mu.Unlock()
	close(call.done)

	return call.ev, false, call.err
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close implements Cache. A memory cache holds no external resources.
func (c *MemoryCache) Close() error {
	return nil
}
