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
	"strings"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
)

// ReportAgent generates the customer-facing HTML supplement report.
type ReportAgent struct {
	client llm.Client
}

var _ pipeline.Invoker[pipeline.ReportInput, string] = (*ReportAgent)(nil)

func NewReportAgent(client llm.Client) *ReportAgent {
	return &ReportAgent{client: client}
}

// Name implements pipeline.Invoker.
func (a *ReportAgent) Name() string { return "report_agent" }

// Invoke implements pipeline.Invoker. Report output is free-form HTML,
// so no structured-output schema applies.
func (a *ReportAgent) Invoke(ctx context.Context, in pipeline.ReportInput, repairHint string) (string, error) {
	observability.Default().RecordLLMCall(a.Name())
	prompt := repairPrompt(reportUserPrompt(in), repairHint)
	return a.client.Complete(ctx, reportSystemPrompt, prompt, llm.GenerationParams{
		Temperature: f32(0.3),
	})
}

// Decode implements pipeline.Invoker. Accepts any non-empty HTML
// document, stripping markdown fences the model may add despite
// instructions.
func (a *ReportAgent) Decode(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```html")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return "", fmt.Errorf("empty report output")
	}
	if !strings.Contains(s, "<") {
		return "", fmt.Errorf("report output is not HTML")
	}
	return s, nil
}
