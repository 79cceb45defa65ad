// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// applyAdjustments mutates pipeline outputs in place per the reviewer's
// requested edits. Adjustments apply on every review cycle, before any
// rerun executes, regardless of which precedence branch fires.
//
// Unknown targets, unknown fields, and uncoercible values never fail
// the job; each becomes a warning flag for the human reviewer.
func applyAdjustments(pctx *Context, adjs []datatypes.Adjustment, logger *slog.Logger) int {
	applied := 0
	for _, adj := range adjs {
		ok := applyAdjustment(pctx, adj)
		if ok {
			applied++
			logger.Info("adjustment applied",
				"target_type", adj.TargetType,
				"target_id", adj.TargetID,
				"field", adj.Field)
			continue
		}
		logger.Warn("adjustment not applicable",
			"target_type", adj.TargetType,
			"target_id", adj.TargetID,
			"field", adj.Field)
		pctx.AddFlag(datatypes.HumanFlag{
			FlagID:            "adj_" + adj.RequestID,
			Severity:          "warning",
			Reason:            "requested adjustment could not be applied",
			Context:           fmt.Sprintf("%s %s field %q", adj.TargetType, adj.TargetID, adj.Field),
			RecommendedAction: "apply the adjustment manually if warranted",
		})
	}
	return applied
}

func applyAdjustment(pctx *Context, adj datatypes.Adjustment) bool {
	switch adj.TargetType {
	case "supplement":
		return adjustSupplement(pctx.Strategy, adj)
	case "gap":
		return adjustGap(pctx.Gaps, adj)
	case "margin_analysis":
		return adjustMargin(pctx.Strategy, adj)
	case "line_item":
		return adjustLineItem(pctx.Estimate, adj)
	default:
		// Evidence edits are never applied mechanically; photo-derived
		// facts need a rerun, not a field poke.
		return false
	}
}

func adjustSupplement(strategy *datatypes.SupplementStrategy, adj datatypes.Adjustment) bool {
	if strategy == nil {
		return false
	}
	sup := strategy.SupplementByID(adj.TargetID)
	if sup == nil {
		return false
	}
	switch adj.Field {
	case "quantity":
		return setFloat(&sup.Quantity, adj.SuggestedValue)
	case "estimated_unit_price":
		return setFloat(&sup.EstimatedUnitPrice, adj.SuggestedValue)
	case "estimated_value":
		return setFloat(&sup.EstimatedValue, adj.SuggestedValue)
	case "confidence":
		return setFloat(&sup.Confidence, adj.SuggestedValue)
	case "justification":
		return setString(&sup.Justification, adj.SuggestedValue)
	case "priority":
		return setString(&sup.Priority, adj.SuggestedValue)
	case "pushback_risk":
		return setString(&sup.PushbackRisk, adj.SuggestedValue)
	case "code_citation":
		return setString(&sup.CodeCitation, adj.SuggestedValue)
	}
	return false
}

func adjustGap(gaps *datatypes.GapAnalysis, adj datatypes.Adjustment) bool {
	if gaps == nil {
		return false
	}
	gap := gaps.GapByID(adj.TargetID)
	if gap == nil {
		return false
	}
	switch adj.Field {
	case "severity":
		s, ok := asString(adj.SuggestedValue)
		if !ok || (s != "critical" && s != "major" && s != "minor") {
			return false
		}
		gap.Severity = s
		return true
	case "description":
		return setString(&gap.Description, adj.SuggestedValue)
	case "confidence":
		return setFloat(&gap.Confidence, adj.SuggestedValue)
	case "unpaid_work_risk":
		return setBool(&gap.UnpaidWorkRisk, adj.SuggestedValue)
	case "notes":
		return setString(&gap.Notes, adj.SuggestedValue)
	}
	return false
}

func adjustMargin(strategy *datatypes.SupplementStrategy, adj datatypes.Adjustment) bool {
	if strategy == nil {
		return false
	}
	m := &strategy.MarginAnalysis
	switch adj.Field {
	case "proposed_supplement_total":
		return setFloat(&m.ProposedSupplementTotal, adj.SuggestedValue)
	case "new_estimate_total":
		return setFloat(&m.NewEstimateTotal, adj.SuggestedValue)
	case "projected_margin":
		return setFloat(&m.ProjectedMargin, adj.SuggestedValue)
	case "margin_gap_remaining":
		return setFloat(&m.MarginGapRemaining, adj.SuggestedValue)
	case "target_achieved":
		return setBool(&m.TargetAchieved, adj.SuggestedValue)
	}
	return false
}

func adjustLineItem(est *datatypes.EstimateInterpretation, adj datatypes.Adjustment) bool {
	if est == nil {
		return false
	}
	for i := range est.LineItems {
		if est.LineItems[i].LineID != adj.TargetID {
			continue
		}
		li := &est.LineItems[i]
		switch adj.Field {
		case "quantity":
			return setFloat(&li.Quantity, adj.SuggestedValue)
		case "unit_price":
			return setFloat(&li.UnitPrice, adj.SuggestedValue)
		case "total":
			return setFloat(&li.Total, adj.SuggestedValue)
		case "scope_category":
			return setString(&li.ScopeCategory, adj.SuggestedValue)
		}
		return false
	}
	return false
}

// =============================================================================
// Value Coercion
// =============================================================================

// Suggested values arrive as decoded JSON, so numbers are float64 or
// json.Number and occasionally quoted strings.

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func setFloat(dst *float64, v any) bool {
	f, ok := asFloat(v)
	if ok {
		*dst = f
	}
	return ok
}

func setString(dst *string, v any) bool {
	s, ok := asString(v)
	if ok {
		*dst = s
	}
	return ok
}

func setBool(dst *bool, v any) bool {
	b, ok := asBool(v)
	if ok {
		*dst = b
	}
	return ok
}
