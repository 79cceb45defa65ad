// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// GapCategories is the closed set of gap classifications. Outputs with
// an unrecognized category are coerced to "other" during sanitization
// rather than failing the whole analysis.
var GapCategories = map[string]bool{
	"missing_line_item":       true,
	"underquantified":         true,
	"incorrect_pricing":       true,
	"missing_code_item":       true,
	"damage_not_covered":      true,
	"component_missed":        true,
	"measurement_discrepancy": true,
	"material_upgrade_needed": true,
	"labor_underestimated":    true,
	"other":                   true,
}

// ScopeGap is one discrepancy between photo evidence and the estimate.
type ScopeGap struct {
	GapID               string   `json:"gap_id" validate:"required"`
	Category            string   `json:"category" validate:"required"`
	Severity            string   `json:"severity" validate:"required,oneof=critical major minor"`
	Description         string   `json:"description" validate:"required"`
	LinkedPhotos        []string `json:"linked_photos"`
	LinkedEstimateLines []string `json:"linked_estimate_lines"`
	Confidence          float64  `json:"confidence" validate:"gte=0,lte=1"`
	UnpaidWorkRisk      bool     `json:"unpaid_work_risk"`
	Notes               string   `json:"notes,omitempty"`
}

// CoverageSummary aggregates the gap findings.
type CoverageSummary struct {
	CriticalGaps         int    `json:"critical_gaps" validate:"gte=0"`
	MajorGaps            int    `json:"major_gaps" validate:"gte=0"`
	MinorGaps            int    `json:"minor_gaps" validate:"gte=0"`
	TotalUnpaidRiskItems int    `json:"total_unpaid_risk_items" validate:"gte=0"`
	Narrative            string `json:"narrative" validate:"required"`
}

// GapAnalysis is the full output of the gap agent.
type GapAnalysis struct {
	ScopeGaps       []ScopeGap      `json:"scope_gaps" validate:"dive"`
	CoverageSummary CoverageSummary `json:"coverage_summary"`
}

// Validate checks the analysis against its structural constraints.
func (g *GapAnalysis) Validate() error {
	if err := pipelineValidate.Struct(g); err != nil {
		return fmt.Errorf("invalid gap analysis: %w", err)
	}
	return nil
}

// Sanitize normalizes fields a model frequently gets slightly wrong:
// unknown categories become "other" and linked ID slices are never nil.
func (g *GapAnalysis) Sanitize() {
	for i := range g.ScopeGaps {
		if !GapCategories[g.ScopeGaps[i].Category] {
			g.ScopeGaps[i].Category = "other"
		}
		if g.ScopeGaps[i].LinkedPhotos == nil {
			g.ScopeGaps[i].LinkedPhotos = []string{}
		}
		if g.ScopeGaps[i].LinkedEstimateLines == nil {
			g.ScopeGaps[i].LinkedEstimateLines = []string{}
		}
	}
}

// GapByID returns a pointer into ScopeGaps for in-place adjustment.
func (g *GapAnalysis) GapByID(id string) *ScopeGap {
	for i := range g.ScopeGaps {
		if g.ScopeGaps[i].GapID == id {
			return &g.ScopeGaps[i]
		}
	}
	return nil
}
