// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// =============================================================================
// Shared Test Fixtures
// =============================================================================

// funcInvoker adapts closures to the Invoker contract for tests.
type funcInvoker[I, O any] struct {
	name   string
	invoke func(ctx context.Context, in I, hint string) (string, error)
	decode func(raw string) (O, error)
}

func (f *funcInvoker[I, O]) Name() string { return f.name }

func (f *funcInvoker[I, O]) Invoke(ctx context.Context, in I, hint string) (string, error) {
	return f.invoke(ctx, in, hint)
}

func (f *funcInvoker[I, O]) Decode(raw string) (O, error) {
	return f.decode(raw)
}

// okInvoker always succeeds, returning out and counting invocations.
func okInvoker[I, O any](name string, out O, calls *int, mu *sync.Mutex) *funcInvoker[I, O] {
	return &funcInvoker[I, O]{
		name: name,
		invoke: func(ctx context.Context, in I, hint string) (string, error) {
			mu.Lock()
			*calls++
			mu.Unlock()
			return "{}", nil
		},
		decode: func(raw string) (O, error) { return out, nil },
	}
}

// fakeVision reserves one budget call per analysis and returns canned
// evidence, counting calls.
type fakeVision struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeVision) Framework() string { return "single_model" }

func (f *fakeVision) Analyze(ctx context.Context, budget *Budget, in VisionInput) (datatypes.VisionEvidence, error) {
	if !budget.Reserve(1) {
		return datatypes.VisionEvidence{}, NewStageError("vision", KindBudgetExhausted, ErrBudgetExhausted)
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return datatypes.VisionEvidence{}, f.err
	}
	return testEvidence(in.Photo.PhotoID), nil
}

func (f *fakeVision) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubExtractor returns fixed text without touching a real PDF.
type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	return s.text, s.err
}

// =============================================================================
// Fixture Data
// =============================================================================

func testJob(photos int) *datatypes.Job {
	job := &datatypes.Job{
		JobID: "job_test00000001",
		Metadata: datatypes.JobMetadata{
			Carrier:         "Acme Mutual",
			ClaimNumber:     "CLM-2025-0042",
			InsuredName:     "Pat Homeowner",
			PropertyAddress: "100 Shingle Ln, Tulsa OK",
		},
		InsuranceEstimate: []byte("%PDF-1.7 test"),
		Costs: datatypes.Costs{
			MaterialsCost: 9000,
			LaborCost:     6000,
			OtherCosts:    500,
			Currency:      "USD",
		},
		BusinessTargets: datatypes.BusinessTargets{MinimumMargin: 0.35},
	}
	for i := 0; i < photos; i++ {
		job.Photos = append(job.Photos, datatypes.Photo{
			PhotoID:  fmt.Sprintf("photo_%08d", i),
			Data:     []byte(fmt.Sprintf("jpeg-bytes-%d", i)),
			Filename: fmt.Sprintf("roof_%d.jpg", i),
			MIMEType: "image/jpeg",
		})
	}
	return job
}

func testEvidence(photoID string) datatypes.VisionEvidence {
	return datatypes.VisionEvidence{
		PhotoID: photoID,
		Components: []datatypes.Component{{
			ComponentType:       "shingle",
			LocationHint:        "north slope",
			Condition:           "damaged_severe",
			Description:         "hail bruising across the field",
			SeverityScore:       0.8,
			DetectionConfidence: 0.9,
		}},
	}
}

func testEstimate() *datatypes.EstimateInterpretation {
	return &datatypes.EstimateInterpretation{
		EstimateSummary: datatypes.EstimateSummary{
			Carrier:             "Acme Mutual",
			ClaimNumber:         "CLM-2025-0042",
			TotalEstimateAmount: 18000,
			RoofRelatedTotal:    17000,
		},
		LineItems: []datatypes.LineItem{{
			LineID:        "L1",
			Description:   "Remove laminated shingles",
			ScopeCategory: "roofing_removal",
			Quantity:      24,
			Unit:          "SQ",
			UnitPrice:     65,
			Total:         1560,
			IsRoofingCore: true,
		}},
		Financials: datatypes.Financials{
			OriginalEstimateTotal: 18000,
			ActualCosts:           datatypes.ActualCosts{Materials: 9000, Labor: 6000, Other: 500, Total: 15500},
			CurrentMargin:         0.139,
			TargetMargin:          0.35,
			MarginGap:             0.211,
		},
		ParsingConfidence: 0.95,
	}
}

func testGaps() *datatypes.GapAnalysis {
	return &datatypes.GapAnalysis{
		ScopeGaps: []datatypes.ScopeGap{{
			GapID:               "G1",
			Category:            "missing_code_item",
			Severity:            "critical",
			Description:         "drip edge absent from the estimate",
			LinkedPhotos:        []string{"photo_00000000"},
			LinkedEstimateLines: []string{},
			Confidence:          0.9,
			UnpaidWorkRisk:      true,
		}},
		CoverageSummary: datatypes.CoverageSummary{
			CriticalGaps:         1,
			TotalUnpaidRiskItems: 1,
			Narrative:            "one critical code item missing",
		},
	}
}

func testStrategy() *datatypes.SupplementStrategy {
	return &datatypes.SupplementStrategy{
		Supplements: []datatypes.SupplementProposal{{
			SupplementID:        "S1",
			Type:                "code_item",
			LineItemDescription: "Drip edge - aluminum",
			Justification:       "IRC R905.2.8.5 requires drip edge at eaves and rakes",
			Source:              "code",
			LinkedGaps:          []string{"G1"},
			LinkedPhotos:        []string{"photo_00000000"},
			Quantity:            180,
			Unit:                "LF",
			EstimatedUnitPrice:  3.2,
			EstimatedValue:      576,
			Confidence:          0.9,
			PushbackRisk:        "low",
			Priority:            "high",
		}},
		MarginAnalysis: datatypes.MarginAnalysis{
			OriginalEstimate:        18000,
			TotalCosts:              15500,
			CurrentMargin:           0.139,
			ProposedSupplementTotal: 576,
			NewEstimateTotal:        18576,
			ProjectedMargin:         0.166,
			TargetMargin:            0.35,
			MarginGapRemaining:      0.184,
		},
	}
}

func approvedReview() *datatypes.ReviewResult {
	return &datatypes.ReviewResult{
		Approved:          true,
		OverallAssessment: "package is defensible and complete",
		CarrierRiskAssessment: datatypes.CarrierRiskAssessment{
			OverallRisk: "low",
		},
		ReadyForDelivery: true,
	}
}
