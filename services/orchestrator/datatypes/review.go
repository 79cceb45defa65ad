// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// RerunRequest asks the review loop to re-execute one agent with
// additional instructions. The target must be in the closed agent set.
type RerunRequest struct {
	RequestID      string    `json:"request_id" validate:"required"`
	TargetAgent    AgentName `json:"target_agent" validate:"required,oneof=vision_agent estimate_agent gap_agent supplement_agent"`
	Priority       string    `json:"priority" validate:"required,oneof=critical high medium low"`
	Reason         string    `json:"reason" validate:"required"`
	Instructions   string    `json:"instructions" validate:"required"`
	AffectedItems  []string  `json:"affected_items"`
	ExpectsChange  []string  `json:"expects_change_to"`
}

// Adjustment is a direct field edit the reviewer wants applied to an
// existing output, identified by target type, ID, and field name.
type Adjustment struct {
	RequestID      string `json:"request_id" validate:"required"`
	TargetType     string `json:"target_type" validate:"required,oneof=supplement gap line_item evidence margin_analysis"`
	TargetID       string `json:"target_id" validate:"required"`
	Field          string `json:"field" validate:"required"`
	CurrentValue   any    `json:"current_value"`
	SuggestedValue any    `json:"suggested_value"`
	Reason         string `json:"reason" validate:"required"`
}

// HumanFlag marks something a human must look at before delivery.
type HumanFlag struct {
	FlagID            string `json:"flag_id" validate:"required"`
	Severity          string `json:"severity" validate:"required,oneof=critical warning info"`
	Reason            string `json:"reason" validate:"required"`
	Context           string `json:"context"`
	RecommendedAction string `json:"recommended_action"`
}

// CarrierRiskAssessment rates how likely the carrier is to push back.
type CarrierRiskAssessment struct {
	OverallRisk   string   `json:"overall_risk" validate:"required,oneof=low medium high"`
	HighRiskItems []string `json:"high_risk_items"`
	Notes         string   `json:"notes,omitempty"`
}

// ReviewResult is the full output of the review agent for one cycle.
type ReviewResult struct {
	Approved              bool                  `json:"approved"`
	OverallAssessment     string                `json:"overall_assessment" validate:"required"`
	RerunsRequested       []RerunRequest        `json:"reruns_requested" validate:"dive"`
	AdjustmentsRequested  []Adjustment          `json:"adjustments_requested" validate:"dive"`
	HumanFlags            []HumanFlag           `json:"human_flags" validate:"dive"`
	CarrierRiskAssessment CarrierRiskAssessment `json:"carrier_risk_assessment"`
	ReadyForDelivery      bool                  `json:"ready_for_delivery"`
}

// Validate checks the review result against its structural constraints.
func (r *ReviewResult) Validate() error {
	if err := pipelineValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid review result: %w", err)
	}
	return nil
}
