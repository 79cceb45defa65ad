// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

func sampleEvidence(photoID string) datatypes.VisionEvidence {
	return datatypes.VisionEvidence{
		PhotoID: photoID,
		Components: []datatypes.Component{{
			ComponentType:       "flashing",
			LocationHint:        "chimney base",
			Condition:           "damaged_moderate",
			Description:         "lifted step flashing",
			SeverityScore:       0.6,
			DetectionConfidence: 0.85,
		}},
	}
}

// TestKeyFor verifies key derivation is deterministic and sensitive to
// both the framework and the photo bytes.
func TestKeyFor(t *testing.T) {
	photo := []byte("jpeg-bytes")

	if KeyFor("single_model", photo) != KeyFor("single_model", photo) {
		t.Error("identical inputs should derive identical keys")
	}
	if KeyFor("single_model", photo) == KeyFor("parallel_aggregate", photo) {
		t.Error("different frameworks should derive different keys")
	}
	if KeyFor("single_model", photo) == KeyFor("single_model", []byte("other-bytes")) {
		t.Error("different photos should derive different keys")
	}
	// The separator byte keeps framework/photo boundaries unambiguous.
	if KeyFor("ab", []byte("c")) == KeyFor("a", []byte("bc")) {
		t.Error("framework and photo bytes must not be conflatable")
	}
}

// caches returns each backend under test by name.
func caches(t *testing.T) map[string]Cache {
	t.Helper()
	badgerCache, err := NewBadgerCache(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("NewBadgerCache failed: %v", err)
	}
	t.Cleanup(func() { badgerCache.Close() })
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"badger": badgerCache,
	}
}

// TestCacheMissThenHit verifies compute runs once for a key and the
// stored result is returned on subsequent lookups.
func TestCacheMissThenHit(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			computes := 0
			compute := func(ctx context.Context) (datatypes.VisionEvidence, error) {
				computes++
				return sampleEvidence("photo_1"), nil
			}

			ev, hit, err := cache.GetOrCompute(context.Background(), "k1", compute)
			if err != nil {
				t.Fatalf("first GetOrCompute failed: %v", err)
			}
			if hit {
				t.Error("first lookup should be a miss")
			}
			if ev.PhotoID != "photo_1" {
				t.Errorf("PhotoID = %q, want %q", ev.PhotoID, "photo_1")
			}

			ev, hit, err = cache.GetOrCompute(context.Background(), "k1", compute)
			if err != nil {
				t.Fatalf("second GetOrCompute failed: %v", err)
			}
			if !hit {
				t.Error("second lookup should be a hit")
			}
			if len(ev.Components) != 1 {
				t.Errorf("components = %d, want 1", len(ev.Components))
			}
			if computes != 1 {
				t.Errorf("compute ran %d times, want 1", computes)
			}
		})
	}
}

// TestCacheDistinctKeys verifies separate keys compute independently.
func TestCacheDistinctKeys(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			computes := 0
			compute := func(ctx context.Context) (datatypes.VisionEvidence, error) {
				computes++
				return sampleEvidence("photo"), nil
			}

			for _, key := range []string{"ka", "kb"} {
				if _, hit, err := cache.GetOrCompute(context.Background(), key, compute); err != nil || hit {
					t.Fatalf("key %q: hit=%v err=%v, want fresh compute", key, hit, err)
				}
			}
			if computes != 2 {
				t.Errorf("compute ran %d times, want 2", computes)
			}
		})
	}
}

// TestCacheErrorNotStored verifies a failed compute is not cached and
// the next lookup retries.
func TestCacheErrorNotStored(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			computeErr := errors.New("vision provider unavailable")
			failing := func(ctx context.Context) (datatypes.VisionEvidence, error) {
				return datatypes.VisionEvidence{}, computeErr
			}

			if _, _, err := cache.GetOrCompute(context.Background(), "k1", failing); !errors.Is(err, computeErr) {
				t.Fatalf("error = %v, want the compute error", err)
			}

			ev, hit, err := cache.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (datatypes.VisionEvidence, error) {
				return sampleEvidence("photo_retry"), nil
			})
			if err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			if hit {
				t.Error("retry after a failed compute should be a miss")
			}
			if ev.PhotoID != "photo_retry" {
				t.Errorf("PhotoID = %q, want %q", ev.PhotoID, "photo_retry")
			}
		})
	}
}

// TestCacheCoalescesConcurrentMisses verifies concurrent lookups on one
// key share a single compute: exactly one caller reports a miss, the
// waiters report hits.
func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			const callers = 16
			var computes atomic.Int32
			gate := make(chan struct{})
			compute := func(ctx context.Context) (datatypes.VisionEvidence, error) {
				computes.Add(1)
				<-gate
				return sampleEvidence("photo_shared"), nil
			}

			var wg sync.WaitGroup
			var misses atomic.Int32
			started := make(chan struct{}, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					started <- struct{}{}
					ev, hit, err := cache.GetOrCompute(context.Background(), "shared", compute)
					if err != nil {
						t.Errorf("GetOrCompute failed: %v", err)
						return
					}
					if !hit {
						misses.Add(1)
					}
					if ev.PhotoID != "photo_shared" {
						t.Errorf("PhotoID = %q, want %q", ev.PhotoID, "photo_shared")
					}
				}()
			}
			for i := 0; i < callers; i++ {
				<-started
			}
			close(gate)
			wg.Wait()

			if got := computes.Load(); got != 1 {
				t.Errorf("compute ran %d times, want 1", got)
			}
			if got := misses.Load(); got != 1 {
				t.Errorf("misses = %d, want exactly 1", got)
			}
		})
	}
}

// TestCacheWaiterHonorsContext verifies a coalesced waiter unblocks when
// its own context is cancelled while the leader is still computing.
func TestCacheWaiterHonorsContext(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			gate := make(chan struct{})
			leaderStarted := make(chan struct{})
			go func() {
				cache.GetOrCompute(context.Background(), "slow", func(ctx context.Context) (datatypes.VisionEvidence, error) {
					close(leaderStarted)
					<-gate
					return sampleEvidence("photo_slow"), nil
				})
			}()
			<-leaderStarted

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, _, err := cache.GetOrCompute(ctx, "slow", func(ctx context.Context) (datatypes.VisionEvidence, error) {
				return sampleEvidence("never"), nil
			})
			if !errors.Is(err, context.Canceled) {
				t.Errorf("waiter error = %v, want context.Canceled", err)
			}
			close(gate)
		})
	}
}

// TestMemoryCacheLen verifies the entry count reflects stored results.
func TestMemoryCacheLen(t *testing.T) {
	cache := NewMemoryCache()
	if cache.Len() != 0 {
		t.Errorf("Len = %d, want 0", cache.Len())
	}
	cache.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (datatypes.VisionEvidence, error) {
		return sampleEvidence("p1"), nil
	})
	cache.GetOrCompute(context.Background(), "k2", func(ctx context.Context) (datatypes.VisionEvidence, error) {
		return sampleEvidence("p2"), nil
	})
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}
}
