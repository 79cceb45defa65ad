// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viscache provides the content-addressed vision result cache.
//
// Photo analysis is the most expensive pipeline stage and photo bytes
// are immutable, so results are cached process-wide under a key derived
// from the analysis framework identifier and the photo content. The
// same photo submitted across different jobs hits the cache and
// consumes no LLM budget.
//
// Two implementations are provided: an in-memory cache with per-key
// inflight coalescing, and a BadgerDB-backed cache that survives
// restarts.
package viscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// ComputeFunc produces evidence on a cache miss. It is only called when
// no entry exists for the key; budget reservation happens inside it.
type ComputeFunc func(ctx context.Context) (datatypes.VisionEvidence, error)

// Cache is the vision result cache contract.
//
// GetOrCompute returns the cached evidence for key when present (hit ==
// true, compute not called). On a miss it runs compute, stores the
// result on success, and returns it. Compute errors are returned to the
// caller and nothing is stored.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (ev datatypes.VisionEvidence, hit bool, err error)
	Close() error
}

// KeyFor derives the content-addressed cache key: a SHA-256 digest over
// the framework identifier and the raw photo bytes. Different
// frameworks analyzing the same photo occupy distinct entries.
func KeyFor(framework string, photo []byte) string {
	h := sha256.New()
	h.Write([]byte(framework))
	h.Write([]byte{0})
	h.Write(photo)
	return hex.EncodeToString(h.Sum(nil))
}
