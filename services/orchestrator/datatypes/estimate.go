// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// ActualCosts mirrors the contractor cost breakdown inside the
// financial analysis so the interpretation is self-contained.
type ActualCosts struct {
	Materials float64 `json:"materials" validate:"gte=0"`
	Labor     float64 `json:"labor" validate:"gte=0"`
	Other     float64 `json:"other" validate:"gte=0"`
	Total     float64 `json:"total" validate:"gte=0"`
}

// Financials compares the carrier estimate against actual costs.
type Financials struct {
	OriginalEstimateTotal float64     `json:"original_estimate_total" validate:"gte=0"`
	ActualCosts           ActualCosts `json:"actual_costs"`
	CurrentMargin         float64     `json:"current_margin"`
	TargetMargin          float64     `json:"target_margin" validate:"gte=0,lte=1"`
	MarginGap             float64     `json:"margin_gap"`
}

// LineItem is one parsed line from the carrier estimate.
type LineItem struct {
	LineID          string  `json:"line_id" validate:"required"`
	Description     string  `json:"description" validate:"required"`
	ScopeCategory   string  `json:"scope_category" validate:"required,oneof=roofing_removal roofing_installation flashing ventilation gutters skylights chimney decking underlayment ice_water_shield drip_edge ridge_cap cleanup permit overhead_profit code_upgrade general_conditions other"`
	Quantity        float64 `json:"quantity" validate:"gte=0"`
	Unit            string  `json:"unit" validate:"required"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	Total           float64 `json:"total" validate:"gte=0"`
	IsRoofingCore   bool    `json:"is_roofing_core"`
	IsCodeItem      bool    `json:"is_code_item"`
	IsOversightRisk bool    `json:"is_oversight_risk"`
	RawLineText     string  `json:"raw_line_text,omitempty"`
}

// EstimateSummary is the header-level view of the carrier estimate.
type EstimateSummary struct {
	Carrier                   string  `json:"carrier" validate:"required"`
	ClaimNumber               string  `json:"claim_number" validate:"required"`
	TotalEstimateAmount       float64 `json:"total_estimate_amount" validate:"gte=0"`
	RoofRelatedTotal          float64 `json:"roof_related_total" validate:"gte=0"`
	OverheadAndProfitIncluded bool    `json:"overhead_and_profit_included"`
	DepreciationAmount        float64 `json:"depreciation_amount" validate:"gte=0"`
}

// EstimateInterpretation is the full structured reading of the estimate PDF.
type EstimateInterpretation struct {
	EstimateSummary   EstimateSummary `json:"estimate_summary"`
	LineItems         []LineItem      `json:"line_items" validate:"dive"`
	Financials        Financials      `json:"financials"`
	ParsingNotes      []string        `json:"parsing_notes"`
	ParsingConfidence float64         `json:"parsing_confidence" validate:"gte=0,lte=1"`
}

// Validate checks the interpretation against its structural constraints.
func (e *EstimateInterpretation) Validate() error {
	if err := pipelineValidate.Struct(e); err != nil {
		return fmt.Errorf("invalid estimate interpretation: %w", err)
	}
	return nil
}
