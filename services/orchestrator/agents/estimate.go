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

// EstimateAgent interprets the extracted carrier estimate text into a
// structured reading with line items and financials.
type EstimateAgent struct {
	client llm.Client
}

var _ pipeline.Invoker[pipeline.EstimateInput, *datatypes.EstimateInterpretation] = (*EstimateAgent)(nil)

func NewEstimateAgent(client llm.Client) *EstimateAgent {
	return &EstimateAgent{client: client}
}

// Name implements pipeline.Invoker.
func (a *EstimateAgent) Name() string { return string(datatypes.AgentEstimate) }

// Invoke implements pipeline.Invoker.
func (a *EstimateAgent) Invoke(ctx context.Context, in pipeline.EstimateInput, repairHint string) (string, error) {
	observability.Default().RecordLLMCall(a.Name())
	prompt := repairPrompt(estimateUserPrompt(in), repairHint)
	return a.client.CompleteStructured(ctx, estimateSystemPrompt, prompt, estimateSchema(), llm.GenerationParams{
		Temperature: f32(0.1),
	})
}

// Decode implements pipeline.Invoker.
func (a *EstimateAgent) Decode(raw string) (*datatypes.EstimateInterpretation, error) {
	var est datatypes.EstimateInterpretation
	if err := decodeInto(raw, &est); err != nil {
		return nil, err
	}
	if err := est.Validate(); err != nil {
		return nil, err
	}
	return &est, nil
}
