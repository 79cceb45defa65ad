// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"log/slog"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/tools"
)

// StrategistAgent converts gap analysis into supplement proposals with
// a margin projection. When a code lookup service is configured and the
// job names a jurisdiction, real citations are fetched and offered to
// the model.
type StrategistAgent struct {
	client llm.Client
	codes  tools.CodeLookup
	logger *slog.Logger
}

var _ pipeline.Invoker[pipeline.StrategistInput, *datatypes.SupplementStrategy] = (*StrategistAgent)(nil)

// NewStrategistAgent builds the strategist. codes may be nil.
func NewStrategistAgent(client llm.Client, codes tools.CodeLookup, logger *slog.Logger) *StrategistAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategistAgent{client: client, codes: codes, logger: logger}
}

// Name implements pipeline.Invoker.
func (a *StrategistAgent) Name() string { return string(datatypes.AgentStrategist) }

// Invoke implements pipeline.Invoker.
func (a *StrategistAgent) Invoke(ctx context.Context, in pipeline.StrategistInput, repairHint string) (string, error) {
	observability.Default().RecordLLMCall(a.Name())
	prompt := repairPrompt(strategistUserPrompt(in, a.lookupCitations(ctx, in)), repairHint)
	return a.client.CompleteStructured(ctx, strategistSystemPrompt, prompt, strategySchema(), llm.GenerationParams{
		Temperature: f32(0.3),
	})
}

// Decode implements pipeline.Invoker. Derived margin fields the model
// omitted are recomputed before validation.
func (a *StrategistAgent) Decode(raw string) (*datatypes.SupplementStrategy, error) {
	var strategy datatypes.SupplementStrategy
	if err := decodeInto(raw, &strategy); err != nil {
		return nil, err
	}
	strategy.Sanitize()
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	return &strategy, nil
}

// lookupCitations fetches code citations for the gap categories present.
// Lookup failures degrade to an empty citation list; the model can still
// cite codes from its own knowledge.
func (a *StrategistAgent) lookupCitations(ctx context.Context, in pipeline.StrategistInput) []tools.CodeCitation {
	if a.codes == nil || in.Job.Metadata.Jurisdiction == "" || in.Gaps == nil {
		return nil
	}
	seen := make(map[string]bool)
	var categories []string
	for _, gap := range in.Gaps.ScopeGaps {
		if !seen[gap.Category] {
			seen[gap.Category] = true
			categories = append(categories, gap.Category)
		}
	}
	if len(categories) == 0 {
		return nil
	}
	citations, err := a.codes.Citations(ctx, in.Job.Metadata.Jurisdiction, categories)
	if err != nil {
		a.logger.Warn("code citation lookup failed",
			"jurisdiction", in.Job.Metadata.Jurisdiction, "error", err)
		return nil
	}
	return citations
}
