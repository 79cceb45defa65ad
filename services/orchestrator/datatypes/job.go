// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
)

// =============================================================================
// Job Status
// =============================================================================

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusEscalated  JobStatus = "escalated"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
	StatusApproved   JobStatus = "approved"
	StatusRejected   JobStatus = "rejected"
)

// Terminal reports whether the status admits no further pipeline work.
// Escalated jobs are terminal for the pipeline but still accept the
// approve/reject human decision.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusEscalated, StatusFailed, StatusCancelled,
		StatusApproved, StatusRejected:
		return true
	}
	return false
}

// =============================================================================
// Agent Names
// =============================================================================

// AgentName identifies a rerunnable pipeline agent. The set is closed;
// review targets outside it are rejected at decode time.
type AgentName string

const (
	AgentVision     AgentName = "vision_agent"
	AgentEstimate   AgentName = "estimate_agent"
	AgentGap        AgentName = "gap_agent"
	AgentStrategist AgentName = "supplement_agent"
)

// ParseAgentName maps a wire string onto the closed agent set.
func ParseAgentName(s string) (AgentName, bool) {
	switch AgentName(s) {
	case AgentVision, AgentEstimate, AgentGap, AgentStrategist:
		return AgentName(s), true
	}
	return "", false
}

// =============================================================================
// Job Inputs
// =============================================================================

// BusinessTargets carries the contractor's margin targets.
type BusinessTargets struct {
	MinimumMargin float64 `json:"minimum_margin" validate:"gte=0,lte=1"`
}

// Costs is the contractor's actual cost breakdown for the job.
type Costs struct {
	MaterialsCost float64 `json:"materials_cost" validate:"gte=0"`
	LaborCost     float64 `json:"labor_cost" validate:"gte=0"`
	OtherCosts    float64 `json:"other_costs" validate:"gte=0"`
	Currency      string  `json:"currency" validate:"required,len=3"`
}

// Total returns the sum of all cost components.
func (c Costs) Total() float64 {
	return c.MaterialsCost + c.LaborCost + c.OtherCosts
}

// Photo is a single job-site photo submitted as claim evidence.
type Photo struct {
	PhotoID  string `json:"photo_id" validate:"required"`
	Data     []byte `json:"-" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	MIMEType string `json:"mime_type" validate:"required,oneof=image/jpeg image/png image/webp image/heic"`
	ViewType string `json:"view_type" validate:"omitempty,oneof=overview close_up damage_detail measurement before after aerial unknown"`
	Notes    string `json:"notes,omitempty"`
}

// JobMetadata describes the claim and the insured property.
type JobMetadata struct {
	Carrier         string `json:"carrier" validate:"required"`
	ClaimNumber     string `json:"claim_number" validate:"required"`
	InsuredName     string `json:"insured_name" validate:"required"`
	PropertyAddress string `json:"property_address" validate:"required"`
	DateOfLoss      string `json:"date_of_loss,omitempty"`
	Jurisdiction    string `json:"jurisdiction,omitempty"`
	PolicyNumber    string `json:"policy_number,omitempty"`
	AdjusterName    string `json:"adjuster_name,omitempty"`
	AdjusterEmail   string `json:"adjuster_email,omitempty" validate:"omitempty,email"`
	AdjusterPhone   string `json:"adjuster_phone,omitempty"`
}

// MaxPhotosPerJob caps the vision fan-out width for a single job.
const MaxPhotosPerJob = 20

// Job bundles everything the pipeline needs to process one claim.
type Job struct {
	JobID             string          `json:"job_id" validate:"required"`
	Metadata          JobMetadata     `json:"metadata" validate:"required"`
	InsuranceEstimate []byte          `json:"-" validate:"required"`
	Photos            []Photo         `json:"photos" validate:"min=1,max=20,dive"`
	Costs             Costs           `json:"costs" validate:"required"`
	BusinessTargets   BusinessTargets `json:"business_targets"`
	GenerateReport    bool            `json:"generate_report"`
	CallbackURL       string          `json:"callback_url,omitempty" validate:"omitempty,url"`
}

// Validate checks the job against its structural constraints.
func (j *Job) Validate() error {
	if err := pipelineValidate.Struct(j); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	return nil
}
