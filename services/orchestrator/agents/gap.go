// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
)

// GapAgent cross-references photo evidence against the estimate and
// reports scope gaps.
type GapAgent struct {
	client llm.Client
}

var _ pipeline.Invoker[pipeline.GapInput, *datatypes.GapAnalysis] = (*GapAgent)(nil)

func NewGapAgent(client llm.Client) *GapAgent {
	return &GapAgent{client: client}
}

// Name implements pipeline.Invoker.
func (a *GapAgent) Name() string { return string(datatypes.AgentGap) }

// Invoke implements pipeline.Invoker.
func (a *GapAgent) Invoke(ctx context.Context, in pipeline.GapInput, repairHint string) (string, error) {
	observability.Default().RecordLLMCall(a.Name())
	prompt := repairPrompt(gapUserPrompt(in), repairHint)
	return a.client.CompleteStructured(ctx, gapSystemPrompt, prompt, gapSchema(), llm.GenerationParams{
		Temperature: f32(0.2),
	})
}

// Decode implements pipeline.Invoker. Unknown categories are coerced to
// "other" before validation so a single stray label does not cost a
// repair round trip.
func (a *GapAgent) Decode(raw string) (*datatypes.GapAnalysis, error) {
	var gaps datatypes.GapAnalysis
	if err := decodeInto(raw, &gaps); err != nil {
		return nil, err
	}
	gaps.Sanitize()
	if err := gaps.Validate(); err != nil {
		return nil, err
	}
	return &gaps, nil
}
