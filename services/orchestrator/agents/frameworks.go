// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
)

const (
	FrameworkSingleModel       = "single_model"
	FrameworkParallelAggregate = "parallel_aggregate"
)

// =============================================================================
// Single Model
// =============================================================================

// SingleModelVision analyzes each photo with one model call.
type SingleModelVision struct {
	call *visionCall
}

var _ pipeline.VisionAnalyzer = (*SingleModelVision)(nil)

func NewSingleModelVision(client llm.Client) *SingleModelVision {
	return &SingleModelVision{call: newVisionCall(client, "")}
}

// Framework implements pipeline.VisionAnalyzer.
func (s *SingleModelVision) Framework() string { return FrameworkSingleModel }

// Analyze implements pipeline.VisionAnalyzer.
func (s *SingleModelVision) Analyze(ctx context.Context, budget *pipeline.Budget, in pipeline.VisionInput) (datatypes.VisionEvidence, error) {
	return s.call.analyze(ctx, budget, in)
}

// =============================================================================
// Parallel Aggregate
// =============================================================================

// ParallelAggregateVision analyzes each photo with several models in
// parallel and merges their findings. Agreement between models raises
// detection confidence; disagreement surfaces through the more severe
// reading winning the condition field.
type ParallelAggregateVision struct {
	calls []*visionCall
}

var _ pipeline.VisionAnalyzer = (*ParallelAggregateVision)(nil)

// NewParallelAggregateVision builds the framework over the given
// clients, keyed by a short label used in stage names.
func NewParallelAggregateVision(clients map[string]llm.Client) (*ParallelAggregateVision, error) {
	if len(clients) < 2 {
		return nil, fmt.Errorf("parallel aggregate needs at least 2 models, got %d", len(clients))
	}
	calls := make([]*visionCall, 0, len(clients))
	for label, client := range clients {
		calls = append(calls, newVisionCall(client, label))
	}
	return &ParallelAggregateVision{calls: calls}, nil
}

// Framework implements pipeline.VisionAnalyzer.
func (p *ParallelAggregateVision) Framework() string { return FrameworkParallelAggregate }

// Analyze implements pipeline.VisionAnalyzer. All model calls run
// concurrently; the first hard failure cancels the rest.
func (p *ParallelAggregateVision) Analyze(ctx context.Context, budget *pipeline.Budget, in pipeline.VisionInput) (datatypes.VisionEvidence, error) {
	results := make([]datatypes.VisionEvidence, len(p.calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range p.calls {
		g.Go(func() error {
			ev, err := call.analyze(gctx, budget, in)
			if err != nil {
				return err
			}
			results[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return datatypes.VisionEvidence{}, err
	}
	return mergeEvidence(in.Photo.PhotoID, results), nil
}

// =============================================================================
// Merging
// =============================================================================

// mergeEvidence folds multiple models' readings of the same photo into
// one evidence document. Components are matched by component_type;
// observations are deduplicated by type, first reading wins.
func mergeEvidence(photoID string, results []datatypes.VisionEvidence) datatypes.VisionEvidence {
	merged := datatypes.VisionEvidence{PhotoID: photoID}

	byType := make(map[string][]datatypes.Component)
	var typeOrder []string
	for _, ev := range results {
		for _, c := range ev.Components {
			if _, seen := byType[c.ComponentType]; !seen {
				typeOrder = append(typeOrder, c.ComponentType)
			}
			byType[c.ComponentType] = append(byType[c.ComponentType], c)
		}
	}
	for _, t := range typeOrder {
		merged.Components = append(merged.Components, mergeComponents(byType[t]))
	}

	seenObs := make(map[string]bool)
	for _, ev := range results {
		for _, obs := range ev.GlobalObservations {
			if seenObs[obs.Type] {
				continue
			}
			seenObs[obs.Type] = true
			merged.GlobalObservations = append(merged.GlobalObservations, obs)
		}
	}
	return merged
}

// mergeComponents combines multiple detections of the same component
// type. Text fields keep the most detailed reading, condition keeps the
// most severe one, severity averages, and confidence gets a corroboration
// boost capped at 1.0.
func mergeComponents(group []datatypes.Component) datatypes.Component {
	out := group[0]
	var severitySum, confidenceSum float64
	for _, c := range group {
		severitySum += c.SeverityScore
		confidenceSum += c.DetectionConfidence

		if len(c.LocationHint) > len(out.LocationHint) {
			out.LocationHint = c.LocationHint
		}
		if len(c.Description) > len(out.Description) {
			out.Description = c.Description
		}
		if severityRank[c.Condition] > severityRank[out.Condition] {
			out.Condition = c.Condition
		}
		if out.EstimatedArea == nil && c.EstimatedArea != nil {
			out.EstimatedArea = c.EstimatedArea
		}
		if out.BBox == nil && c.BBox != nil {
			out.BBox = c.BBox
		}
	}
	n := float64(len(group))
	out.SeverityScore = severitySum / n
	out.DetectionConfidence = confidenceSum / n * 1.1
	if out.DetectionConfidence > 1.0 {
		out.DetectionConfidence = 1.0
	}
	return out
}
