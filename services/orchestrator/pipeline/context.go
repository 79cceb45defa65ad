// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the supplement pipeline core: the stage
// scheduler, the review-loop state machine, the cascade resolver, the
// per-job call budget, and the validating repair wrapper around every
// model invocation.
//
// Stage order:
//
//	prepare ──► vision (per photo) ─┐
//	        └─► estimate ───────────┴─► gap ─► strategist ─► review loop ─► report
//
// Vision and estimate run concurrently; everything downstream of the
// barrier is sequential. The review loop may re-enter gap/strategist
// (and, rarely, vision/estimate) through the cascade resolver.
package pipeline

import (
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// Context accumulates the intermediate outputs of one job run. It is
// owned by the scheduler goroutine: stages read upstream fields and
// write their own slot, fan-out tasks write disjoint slice slots, and
// no stage mutates another stage's output except through the review
// loop's adjustment application.
type Context struct {
	Job          *datatypes.Job
	EstimateText string

	Evidence []datatypes.VisionEvidence
	Estimate *datatypes.EstimateInterpretation
	Gaps     *datatypes.GapAnalysis
	Strategy *datatypes.SupplementStrategy

	Review        *datatypes.ReviewResult
	ReviewHistory []*datatypes.ReviewResult
	ReviewCycle   int

	Flags  []datatypes.HumanFlag
	Report *datatypes.ReportArtifact
}

// NewContext creates a run context for job with evidence slots
// pre-sized to the photo count.
func NewContext(job *datatypes.Job) *Context {
	return &Context{
		Job:      job,
		Evidence: make([]datatypes.VisionEvidence, len(job.Photos)),
	}
}

// AddFlag appends a human flag to the accumulated set.
func (c *Context) AddFlag(flag datatypes.HumanFlag) {
	c.Flags = append(c.Flags, flag)
}
