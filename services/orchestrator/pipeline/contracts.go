// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"time"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// =============================================================================
// Limits
// =============================================================================

// Limits carries the externally supplied pipeline constants. Zero
// values are replaced by defaults via Normalize.
type Limits struct {
	// MaxReviewCycles bounds review loop iterations per job.
	MaxReviewCycles int

	// MaxRerunsPerAgent bounds how often the review loop may rerun one
	// agent per job. Requests past the cap become human flags.
	MaxRerunsPerAgent int

	// MaxTotalLLMCalls is the hard per-job model call budget, counting
	// repair retries and review-triggered reruns.
	MaxTotalLLMCalls int

	// PhotoTimeout bounds a single photo analysis.
	PhotoTimeout time.Duration

	// JobTimeout bounds the whole pipeline run.
	JobTimeout time.Duration
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxReviewCycles:   2,
		MaxRerunsPerAgent: 1,
		MaxTotalLLMCalls:  12,
		PhotoTimeout:      2 * time.Minute,
		JobTimeout:        30 * time.Minute,
	}
}

// Normalize fills zero fields with defaults.
func (l Limits) Normalize() Limits {
	def := DefaultLimits()
	if l.MaxReviewCycles <= 0 {
		l.MaxReviewCycles = def.MaxReviewCycles
	}
	if l.MaxRerunsPerAgent <= 0 {
		l.MaxRerunsPerAgent = def.MaxRerunsPerAgent
	}
	if l.MaxTotalLLMCalls <= 0 {
		l.MaxTotalLLMCalls = def.MaxTotalLLMCalls
	}
	if l.PhotoTimeout <= 0 {
		l.PhotoTimeout = def.PhotoTimeout
	}
	if l.JobTimeout <= 0 {
		l.JobTimeout = def.JobTimeout
	}
	return l
}

// =============================================================================
// Stage Inputs
// =============================================================================

// VisionInput is the per-photo payload for the vision stage.
type VisionInput struct {
	Photo        datatypes.Photo
	Job          *datatypes.Job
	Instructions string
}

// EstimateInput is the payload for estimate interpretation.
type EstimateInput struct {
	Job          *datatypes.Job
	EstimateText string
	Instructions string
}

// GapInput is the payload for gap analysis.
type GapInput struct {
	Job          *datatypes.Job
	Evidence     []datatypes.VisionEvidence
	Estimate     *datatypes.EstimateInterpretation
	Instructions string
}

// StrategistInput is the payload for supplement strategy.
type StrategistInput struct {
	Job          *datatypes.Job
	Gaps         *datatypes.GapAnalysis
	Estimate     *datatypes.EstimateInterpretation
	Instructions string
}

// ReviewInput is the payload for one review cycle. Cycle is 1-based.
type ReviewInput struct {
	Job       *datatypes.Job
	Evidence  []datatypes.VisionEvidence
	Estimate  *datatypes.EstimateInterpretation
	Gaps      *datatypes.GapAnalysis
	Strategy  *datatypes.SupplementStrategy
	Cycle     int
	MaxCycles int
	History   []*datatypes.ReviewResult
}

// ReportInput is the payload for report generation.
type ReportInput struct {
	Job      *datatypes.Job
	Evidence []datatypes.VisionEvidence
	Estimate *datatypes.EstimateInterpretation
	Gaps     *datatypes.GapAnalysis
	Strategy *datatypes.SupplementStrategy
	Review   *datatypes.ReviewResult
	Flags    []datatypes.HumanFlag
}

// =============================================================================
// Stage Contracts
// =============================================================================

// Invoker is the contract every text-stage agent implements. Invoke
// performs exactly one model call and returns the raw output; Decode
// parses and validates it. The split lets InvokeWithRepair own budget
// accounting and the single repair retry.
type Invoker[I, O any] interface {
	Name() string
	Invoke(ctx context.Context, in I, repairHint string) (string, error)
	Decode(raw string) (O, error)
}

// VisionAnalyzer analyzes one photo. Implementations are the vision
// frameworks (single model, parallel aggregate); each underlying model
// call inside Analyze reserves from the budget and carries its own
// repair retry. Framework names participate in the cache key.
type VisionAnalyzer interface {
	Framework() string
	Analyze(ctx context.Context, budget *Budget, in VisionInput) (datatypes.VisionEvidence, error)
}

// Agents binds the text stages to their invokers.
type Agents struct {
	Estimate   Invoker[EstimateInput, *datatypes.EstimateInterpretation]
	Gap        Invoker[GapInput, *datatypes.GapAnalysis]
	Strategist Invoker[StrategistInput, *datatypes.SupplementStrategy]
	Review     Invoker[ReviewInput, *datatypes.ReviewResult]
	Report     Invoker[ReportInput, string]
}
