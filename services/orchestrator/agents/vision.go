// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"fmt"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
)

// visionCall is one model's view of a photo. Frameworks compose one or
// more of these; each call runs under the shared job budget with its
// own repair retry.
type visionCall struct {
	client llm.Client
	label  string
}

func newVisionCall(client llm.Client, label string) *visionCall {
	return &visionCall{client: client, label: label}
}

func (v *visionCall) invoke(ctx context.Context, in pipeline.VisionInput, hint string) (string, error) {
	observability.Default().RecordLLMCall(string(datatypes.AgentVision))
	prompt := repairPrompt(visionUserPrompt(in), hint)
	images := []llm.ImageInput{{Data: in.Photo.Data, MIME: in.Photo.MIMEType}}
	return v.client.CompleteVisionStructured(ctx, visionSystemPrompt, prompt, images, visionSchema(), llm.GenerationParams{
		Temperature: f32(0.2),
	})
}

func (v *visionCall) decode(raw string) (datatypes.VisionEvidence, error) {
	var ev datatypes.VisionEvidence
	if err := decodeInto(raw, &ev); err != nil {
		return datatypes.VisionEvidence{}, err
	}
	if ev.PhotoID == "" {
		// The caller rewrites the ID anyway; a placeholder keeps
		// validation structural rather than cosmetic.
		ev.PhotoID = "pending"
	}
	if err := ev.Validate(); err != nil {
		return datatypes.VisionEvidence{}, err
	}
	return ev, nil
}

// analyze runs the full invoke-decode-repair sequence for one photo
// against one model.
func (v *visionCall) analyze(ctx context.Context, budget *pipeline.Budget, in pipeline.VisionInput) (datatypes.VisionEvidence, error) {
	stage := "vision"
	if v.label != "" {
		stage = fmt.Sprintf("vision[%s]", v.label)
	}
	return pipeline.InvokeWithRepair(ctx, budget, stage,
		func(ctx context.Context, hint string) (string, error) {
			return v.invoke(ctx, in, hint)
		},
		v.decode,
	)
}
