// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "sync/atomic"

// Budget tracks LLM call consumption for a single job against a hard
// ceiling. All model-backed invocations must reserve before calling.
//
// Reserve is atomic under concurrent fan-out: the sum of successful
// reservations never exceeds the ceiling, and a failed reservation
// consumes nothing.
type Budget struct {
	max  int64
	used atomic.Int64
}

// NewBudget creates a tracker with the given ceiling. A non-positive
// ceiling permits no calls.
func NewBudget(max int) *Budget {
	return &Budget{max: int64(max)}
}

// Reserve attempts to claim n calls. It succeeds only if the claim fits
// entirely under the ceiling.
func (b *Budget) Reserve(n int) bool {
	if n <= 0 {
		return true
	}
	claim := int64(n)
	for {
		used := b.used.Load()
		if used+claim > b.max {
			return false
		}
		if b.used.CompareAndSwap(used, used+claim) {
			return true
		}
	}
}

// Used returns the number of calls reserved so far.
func (b *Budget) Used() int {
	return int(b.used.Load())
}

// Remaining returns the number of calls still available.
func (b *Budget) Remaining() int {
	r := b.max - b.used.Load()
	if r < 0 {
		return 0
	}
	return int(r)
}

// Exhausted reports whether no further calls can be reserved.
func (b *Budget) Exhausted() bool {
	return b.used.Load() >= b.max
}
