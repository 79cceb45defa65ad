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

// ReviewAgent performs quality control on the assembled package and
// decides between approval, reruns, adjustments, and escalation.
type ReviewAgent struct {
	client llm.Client
}

var _ pipeline.Invoker[pipeline.ReviewInput, *datatypes.ReviewResult] = (*ReviewAgent)(nil)

func NewReviewAgent(client llm.Client) *ReviewAgent {
	return &ReviewAgent{client: client}
}

// Name implements pipeline.Invoker.
func (a *ReviewAgent) Name() string { return "review_agent" }

// Invoke implements pipeline.Invoker.
func (a *ReviewAgent) Invoke(ctx context.Context, in pipeline.ReviewInput, repairHint string) (string, error) {
	observability.Default().RecordLLMCall(a.Name())
	prompt := repairPrompt(reviewUserPrompt(in), repairHint)
	return a.client.CompleteStructured(ctx, reviewSystemPrompt, prompt, reviewSchema(), llm.GenerationParams{
		Temperature: f32(0.1),
	})
}

// Decode implements pipeline.Invoker.
func (a *ReviewAgent) Decode(raw string) (*datatypes.ReviewResult, error) {
	var review datatypes.ReviewResult
	if err := decodeInto(raw, &review); err != nil {
		return nil, err
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}
	return &review, nil
}
