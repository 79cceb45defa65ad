// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// The agent dependency graph. Rerunning an agent invalidates everything
// downstream of it, so a rerun request expands to its transitive
// dependents:
//
//	vision ──┐
//	         ├──► gap ──► strategist
//	estimate ┘
var downstreamOf = map[datatypes.AgentName][]datatypes.AgentName{
	datatypes.AgentVision:   {datatypes.AgentGap},
	datatypes.AgentEstimate: {datatypes.AgentGap},
	datatypes.AgentGap:      {datatypes.AgentStrategist},
}

// cascadeOrder is the canonical topological execution order.
var cascadeOrder = []datatypes.AgentName{
	datatypes.AgentVision,
	datatypes.AgentEstimate,
	datatypes.AgentGap,
	datatypes.AgentStrategist,
}

// ExpandCascade returns the requested agents plus all transitive
// downstream dependents, deduplicated, in canonical topological order.
// The function is pure and idempotent: expanding an already-expanded
// set returns the same set.
func ExpandCascade(requested []datatypes.AgentName) []datatypes.AgentName {
	include := make(map[datatypes.AgentName]bool, len(cascadeOrder))

	var mark func(a datatypes.AgentName)
	mark = func(a datatypes.AgentName) {
		if include[a] {
			return
		}
		include[a] = true
		for _, d := range downstreamOf[a] {
			mark(d)
		}
	}
	for _, a := range requested {
		mark(a)
	}

	out := make([]datatypes.AgentName, 0, len(include))
	for _, a := range cascadeOrder {
		if include[a] {
			out = append(out, a)
		}
	}
	return out
}
