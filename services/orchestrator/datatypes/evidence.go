// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// BoundingBox locates a detected component within a photo, normalized 0-1.
type BoundingBox struct {
	X      float64 `json:"x" validate:"gte=0,lte=1"`
	Y      float64 `json:"y" validate:"gte=0,lte=1"`
	Width  float64 `json:"width" validate:"gte=0,lte=1"`
	Height float64 `json:"height" validate:"gte=0,lte=1"`
}

// EstimatedArea is a model-estimated size for a component.
type EstimatedArea struct {
	Value      float64 `json:"value" validate:"gte=0"`
	Unit       string  `json:"unit" validate:"required,oneof=sq_ft sq_m linear_ft linear_m each"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Method     string  `json:"method" validate:"required,oneof=direct_measurement reference_object model_estimate"`
}

// Component is a roofing component detected in a single photo.
//
// The condition set intentionally includes common model synonyms
// (severe_damage, intact, fair, ...) so near-miss outputs validate
// without a repair round trip.
type Component struct {
	ComponentType       string         `json:"component_type" validate:"required,oneof=shingle flashing ridge_cap valley vent pipe_boot skylight chimney gutter downspout fascia soffit drip_edge ice_water_shield underlayment decking satellite_dish_mount hvac_curb other"`
	LocationHint        string         `json:"location_hint" validate:"required"`
	Condition           string         `json:"condition" validate:"required,oneof=damaged_severe damaged_moderate damaged_minor worn good new missing unknown severe_damage moderate_damage minor_damage intact excellent fair poor"`
	Description         string         `json:"description" validate:"required"`
	EstimatedArea       *EstimatedArea `json:"estimated_area,omitempty"`
	SeverityScore       float64        `json:"severity_score" validate:"gte=0,lte=1"`
	DetectionConfidence float64        `json:"detection_confidence" validate:"gte=0,lte=1"`
	BBox                *BoundingBox   `json:"bbox,omitempty"`
}

// GlobalObservation is a roof-wide finding not tied to one component.
type GlobalObservation struct {
	Type        string  `json:"type" validate:"required,oneof=overall_condition age_estimate material_type storm_damage_pattern water_damage structural_concern code_violation installation_defect wear_pattern environmental_factor other"`
	Description string  `json:"description" validate:"required"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// VisionEvidence is the full output of vision analysis for one photo.
type VisionEvidence struct {
	PhotoID            string              `json:"photo_id" validate:"required"`
	Components         []Component         `json:"components" validate:"dive"`
	GlobalObservations []GlobalObservation `json:"global_observations" validate:"dive"`
}

// Validate checks the evidence against its structural constraints.
func (v *VisionEvidence) Validate() error {
	if err := pipelineValidate.Struct(v); err != nil {
		return fmt.Errorf("invalid vision evidence: %w", err)
	}
	return nil
}
