// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"strings"
	"testing"
)

// TestExtractJSON verifies fence stripping and prose trimming around
// model JSON output.
func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Here is the analysis:\n{\"a\":1}", `{"a":1}`},
		{"array output", "```json\n[1,2]\n```", `[1,2]`},
		{"surrounding whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.raw); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestDecodeInto verifies decoding rejects empty and malformed payloads.
func TestDecodeInto(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	if err := decodeInto("```json\n{\"a\":7}\n```", &out); err != nil {
		t.Fatalf("decodeInto failed: %v", err)
	}
	if out.A != 7 {
		t.Errorf("a = %d, want 7", out.A)
	}
	if err := decodeInto("", &out); err == nil {
		t.Error("empty output should fail")
	}
	if err := decodeInto("not json at all", &out); err == nil {
		t.Error("non-JSON output should fail")
	}
}

// TestRepairPrompt verifies the correction section is appended only when
// a hint is present.
func TestRepairPrompt(t *testing.T) {
	base := "analyze the photo"
	if got := repairPrompt(base, ""); got != base {
		t.Errorf("prompt without hint = %q, want unchanged", got)
	}
	got := repairPrompt(base, "photo_id is required")
	if !strings.HasPrefix(got, base) {
		t.Error("repaired prompt should keep the original text")
	}
	if !strings.Contains(got, "CORRECTION REQUIRED") || !strings.Contains(got, "photo_id is required") {
		t.Errorf("repaired prompt missing correction section: %q", got)
	}
}

// TestGapAgentDecodeSanitizes verifies unknown gap categories are
// coerced to "other" instead of failing validation.
func TestGapAgentDecodeSanitizes(t *testing.T) {
	agent := NewGapAgent(nil)
	raw := `{
		"scope_gaps": [{
			"gap_id": "G1",
			"category": "made_up_category",
			"severity": "major",
			"description": "ridge vent not in estimate",
			"linked_photos": null,
			"linked_estimate_lines": null,
			"confidence": 0.8,
			"unpaid_work_risk": true
		}],
		"coverage_summary": {
			"critical_gaps": 0,
			"major_gaps": 1,
			"minor_gaps": 0,
			"total_unpaid_risk_items": 1,
			"narrative": "one major gap"
		}
	}`

	gaps, err := agent.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := gaps.ScopeGaps[0].Category; got != "other" {
		t.Errorf("category = %q, want %q", got, "other")
	}
	if gaps.ScopeGaps[0].LinkedPhotos == nil || gaps.ScopeGaps[0].LinkedEstimateLines == nil {
		t.Error("linked ID slices should be backfilled to empty")
	}
}

// TestGapAgentDecodeRejectsInvalid verifies structural failures surface
// as decode errors for the repair retry.
func TestGapAgentDecodeRejectsInvalid(t *testing.T) {
	agent := NewGapAgent(nil)
	raw := `{
		"scope_gaps": [{
			"gap_id": "G1",
			"category": "missing_code_item",
			"severity": "catastrophic",
			"description": "bad severity",
			"confidence": 0.8
		}],
		"coverage_summary": {"narrative": "x"}
	}`
	if _, err := agent.Decode(raw); err == nil {
		t.Error("expected validation error for unknown severity")
	}
}

// TestReportAgentDecode verifies fence stripping and the HTML check.
func TestReportAgentDecode(t *testing.T) {
	agent := NewReportAgent(nil)

	html, err := agent.Decode("```html\n<html><body>ok</body></html>\n```")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !strings.HasPrefix(html, "<html>") {
		t.Errorf("decoded report = %q, want fences stripped", html)
	}

	if _, err := agent.Decode(""); err == nil {
		t.Error("empty report should fail")
	}
	if _, err := agent.Decode("just some prose, no markup"); err == nil {
		t.Error("non-HTML report should fail")
	}
}
