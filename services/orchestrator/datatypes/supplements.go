// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// SupplementProposal is one line item the strategist proposes adding to
// or modifying on the carrier estimate.
type SupplementProposal struct {
	SupplementID        string   `json:"supplement_id" validate:"required"`
	Type                string   `json:"type" validate:"required"`
	LineItemDescription string   `json:"line_item_description" validate:"required"`
	Justification       string   `json:"justification" validate:"required"`
	Source              string   `json:"source" validate:"required"`
	LinkedGaps          []string `json:"linked_gaps"`
	LinkedPhotos        []string `json:"linked_photos"`
	CodeCitation        string   `json:"code_citation,omitempty"`
	Quantity            float64  `json:"quantity" validate:"gte=0"`
	Unit                string   `json:"unit" validate:"required"`
	EstimatedUnitPrice  float64  `json:"estimated_unit_price" validate:"gte=0"`
	EstimatedValue      float64  `json:"estimated_value" validate:"gte=0"`
	Confidence          float64  `json:"confidence" validate:"gte=0,lte=1"`
	PushbackRisk        string   `json:"pushback_risk" validate:"required"`
	Priority            string   `json:"priority" validate:"required"`
}

// MarginAnalysis projects the margin effect of the proposed supplements.
type MarginAnalysis struct {
	OriginalEstimate        float64 `json:"original_estimate" validate:"gte=0"`
	TotalCosts              float64 `json:"total_costs" validate:"gte=0"`
	CurrentMargin           float64 `json:"current_margin"`
	ProposedSupplementTotal float64 `json:"proposed_supplement_total" validate:"gte=0"`
	NewEstimateTotal        float64 `json:"new_estimate_total" validate:"gte=0"`
	ProjectedMargin         float64 `json:"projected_margin"`
	TargetMargin            float64 `json:"target_margin" validate:"gte=0,lte=1"`
	MarginGapRemaining      float64 `json:"margin_gap_remaining"`
	TargetAchieved          bool    `json:"target_achieved"`
}

// SupplementStrategy is the full output of the strategist agent.
type SupplementStrategy struct {
	Supplements    []SupplementProposal `json:"supplements" validate:"dive"`
	MarginAnalysis MarginAnalysis       `json:"margin_analysis"`
	StrategyNotes  []string             `json:"strategy_notes"`
}

// Validate checks the strategy against its structural constraints.
func (s *SupplementStrategy) Validate() error {
	if err := pipelineValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid supplement strategy: %w", err)
	}
	return nil
}

// Sanitize backfills derived margin fields models tend to omit. The
// margin gap and the achieved flag are recomputable from the margins,
// so a missing value is repaired locally instead of burning a retry.
func (s *SupplementStrategy) Sanitize() {
	m := &s.MarginAnalysis
	if m.MarginGapRemaining == 0 && m.TargetMargin != 0 {
		m.MarginGapRemaining = m.TargetMargin - m.ProjectedMargin
		if m.MarginGapRemaining < 0 {
			m.MarginGapRemaining = 0
		}
	}
	if m.ProjectedMargin >= m.TargetMargin {
		m.TargetAchieved = true
	}
	for i := range s.Supplements {
		if s.Supplements[i].LinkedGaps == nil {
			s.Supplements[i].LinkedGaps = []string{}
		}
		if s.Supplements[i].LinkedPhotos == nil {
			s.Supplements[i].LinkedPhotos = []string{}
		}
	}
}

// SupplementByID returns a pointer into Supplements for in-place
// adjustment.
func (s *SupplementStrategy) SupplementByID(id string) *SupplementProposal {
	for i := range s.Supplements {
		if s.Supplements[i].SupplementID == id {
			return &s.Supplements[i]
		}
	}
	return nil
}

// TotalProposedValue sums the estimated value of all proposals.
func (s *SupplementStrategy) TotalProposedValue() float64 {
	var total float64
	for i := range s.Supplements {
		total += s.Supplements[i].EstimatedValue
	}
	return total
}
