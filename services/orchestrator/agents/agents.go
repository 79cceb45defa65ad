// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agents implements the model-backed pipeline stages: vision
// analysis (with pluggable frameworks), estimate interpretation, gap
// analysis, supplement strategy, review, and report generation.
//
// Each agent satisfies the pipeline's Invoker contract: Invoke runs
// exactly one model call, Decode parses and validates the raw output.
// Budget accounting and the single repair retry live in the pipeline
// layer, not here.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON strips markdown code fences a model may wrap around its
// JSON output and trims to the outermost JSON value.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Models occasionally prepend prose before the document.
	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}
	return s
}

// decodeInto extracts, parses, and unmarshals raw model output.
func decodeInto(raw string, v any) error {
	payload := extractJSON(raw)
	if payload == "" {
		return fmt.Errorf("empty model output")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("model output is not valid JSON: %w", err)
	}
	return nil
}

// repairPrompt appends the previous attempt's validation failure so the
// model can correct it.
func repairPrompt(prompt, hint string) string {
	if hint == "" {
		return prompt
	}
	return prompt + "\n\n## CORRECTION REQUIRED\nYour previous response failed validation:\n" +
		hint + "\nReturn corrected JSON that satisfies the schema exactly."
}

// mustJSON renders a value for prompt embedding. Marshal failures are
// impossible for our own datatypes; an empty object keeps the prompt
// well-formed regardless.
func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func f32(v float32) *float32 { return &v }
