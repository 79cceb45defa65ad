// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"encoding/json"

	"github.com/ridgelineai/ridgeline/services/llm"
)

// JSON schemas handed to the providers' structured-output mechanisms.
// They carry the shape and the closed enums; numeric range checks and
// cross-field rules live in the datatypes validators, which remain the
// authority at decode time.

const visionSchemaJSON = `{
  "type": "object",
  "properties": {
    "photo_id": {"type": "string"},
    "components": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "component_type": {"type": "string", "enum": ["shingle", "flashing", "ridge_cap", "valley", "vent", "pipe_boot", "skylight", "chimney", "gutter", "downspout", "fascia", "soffit", "drip_edge", "ice_water_shield", "underlayment", "decking", "satellite_dish_mount", "hvac_curb", "other"]},
          "location_hint": {"type": "string"},
          "condition": {"type": "string", "enum": ["damaged_severe", "damaged_moderate", "damaged_minor", "worn", "good", "new", "missing", "unknown"]},
          "description": {"type": "string"},
          "estimated_area": {
            "type": ["object", "null"],
            "properties": {
              "value": {"type": "number"},
              "unit": {"type": "string", "enum": ["sq_ft", "sq_m", "linear_ft", "linear_m", "each"]},
              "confidence": {"type": "number"},
              "method": {"type": "string", "enum": ["direct_measurement", "reference_object", "model_estimate"]}
            }
          },
          "severity_score": {"type": "number"},
          "detection_confidence": {"type": "number"},
          "bbox": {
            "type": ["object", "null"],
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"},
              "width": {"type": "number"},
              "height": {"type": "number"}
            }
          }
        }
      }
    },
    "global_observations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["overall_condition", "age_estimate", "material_type", "storm_damage_pattern", "water_damage", "structural_concern", "code_violation", "installation_defect", "wear_pattern", "environmental_factor", "other"]},
          "description": {"type": "string"},
          "confidence": {"type": "number"}
        }
      }
    }
  }
}`

const estimateSchemaJSON = `{
  "type": "object",
  "properties": {
    "estimate_summary": {
      "type": "object",
      "properties": {
        "carrier": {"type": "string"},
        "claim_number": {"type": "string"},
        "total_estimate_amount": {"type": "number"},
        "roof_related_total": {"type": "number"},
        "overhead_and_profit_included": {"type": "boolean"},
        "depreciation_amount": {"type": "number"}
      }
    },
    "line_items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "line_id": {"type": "string"},
          "description": {"type": "string"},
          "scope_category": {"type": "string", "enum": ["roofing_removal", "roofing_installation", "flashing", "ventilation", "gutters", "skylights", "chimney", "decking", "underlayment", "ice_water_shield", "drip_edge", "ridge_cap", "cleanup", "permit", "overhead_profit", "code_upgrade", "general_conditions", "other"]},
          "quantity": {"type": "number"},
          "unit": {"type": "string"},
          "unit_price": {"type": "number"},
          "total": {"type": "number"},
          "is_roofing_core": {"type": "boolean"},
          "is_code_item": {"type": "boolean"},
          "is_oversight_risk": {"type": "boolean"},
          "raw_line_text": {"type": ["string", "null"]}
        }
      }
    },
    "financials": {
      "type": "object",
      "properties": {
        "original_estimate_total": {"type": "number"},
        "actual_costs": {
          "type": "object",
          "properties": {
            "materials": {"type": "number"},
            "labor": {"type": "number"},
            "other": {"type": "number"},
            "total": {"type": "number"}
          }
        },
        "current_margin": {"type": "number"},
        "target_margin": {"type": "number"},
        "margin_gap": {"type": "number"}
      }
    },
    "parsing_notes": {"type": "array", "items": {"type": "string"}},
    "parsing_confidence": {"type": "number"}
  }
}`

const gapSchemaJSON = `{
  "type": "object",
  "properties": {
    "scope_gaps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "gap_id": {"type": "string"},
          "category": {"type": "string", "enum": ["missing_line_item", "underquantified", "incorrect_pricing", "missing_code_item", "damage_not_covered", "component_missed", "measurement_discrepancy", "material_upgrade_needed", "labor_underestimated", "other"]},
          "severity": {"type": "string", "enum": ["critical", "major", "minor"]},
          "description": {"type": "string"},
          "linked_photos": {"type": "array", "items": {"type": "string"}},
          "linked_estimate_lines": {"type": "array", "items": {"type": "string"}},
          "confidence": {"type": "number"},
          "unpaid_work_risk": {"type": "boolean"},
          "notes": {"type": ["string", "null"]}
        }
      }
    },
    "coverage_summary": {
      "type": "object",
      "properties": {
        "critical_gaps": {"type": "integer"},
        "major_gaps": {"type": "integer"},
        "minor_gaps": {"type": "integer"},
        "total_unpaid_risk_items": {"type": "integer"},
        "narrative": {"type": "string"}
      }
    }
  }
}`

const strategySchemaJSON = `{
  "type": "object",
  "properties": {
    "supplements": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "supplement_id": {"type": "string"},
          "type": {"type": "string"},
          "line_item_description": {"type": "string"},
          "justification": {"type": "string"},
          "source": {"type": "string"},
          "linked_gaps": {"type": "array", "items": {"type": "string"}},
          "linked_photos": {"type": "array", "items": {"type": "string"}},
          "code_citation": {"type": ["string", "null"]},
          "quantity": {"type": "number"},
          "unit": {"type": "string"},
          "estimated_unit_price": {"type": "number"},
          "estimated_value": {"type": "number"},
          "confidence": {"type": "number"},
          "pushback_risk": {"type": "string"},
          "priority": {"type": "string"}
        }
      }
    },
    "margin_analysis": {
      "type": "object",
      "properties": {
        "original_estimate": {"type": "number"},
        "total_costs": {"type": "number"},
        "current_margin": {"type": "number"},
        "proposed_supplement_total": {"type": "number"},
        "new_estimate_total": {"type": "number"},
        "projected_margin": {"type": "number"},
        "target_margin": {"type": "number"},
        "margin_gap_remaining": {"type": "number"},
        "target_achieved": {"type": "boolean"}
      }
    },
    "strategy_notes": {"type": "array", "items": {"type": "string"}}
  }
}`

const reviewSchemaJSON = `{
  "type": "object",
  "properties": {
    "approved": {"type": "boolean"},
    "overall_assessment": {"type": "string"},
    "reruns_requested": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "request_id": {"type": "string"},
          "target_agent": {"type": "string", "enum": ["vision_agent", "estimate_agent", "gap_agent", "supplement_agent"]},
          "priority": {"type": "string", "enum": ["critical", "high", "medium", "low"]},
          "reason": {"type": "string"},
          "instructions": {"type": "string"},
          "affected_items": {"type": "array", "items": {"type": "string"}},
          "expects_change_to": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "adjustments_requested": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "request_id": {"type": "string"},
          "target_type": {"type": "string", "enum": ["supplement", "gap", "line_item", "evidence", "margin_analysis"]},
          "target_id": {"type": "string"},
          "field": {"type": "string"},
          "current_value": {},
          "suggested_value": {},
          "reason": {"type": "string"}
        }
      }
    },
    "human_flags": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "flag_id": {"type": "string"},
          "severity": {"type": "string", "enum": ["critical", "warning", "info"]},
          "reason": {"type": "string"},
          "context": {"type": "string"},
          "recommended_action": {"type": "string"}
        }
      }
    },
    "carrier_risk_assessment": {
      "type": "object",
      "properties": {
        "overall_risk": {"type": "string", "enum": ["low", "medium", "high"]},
        "high_risk_items": {"type": "array", "items": {"type": "string"}},
        "notes": {"type": ["string", "null"]}
      }
    },
    "ready_for_delivery": {"type": "boolean"}
  }
}`

func visionSchema() llm.Schema {
	return llm.Schema{
		Name:        "vision_evidence",
		Description: "Structured roofing evidence extracted from one photo",
		Raw:         json.RawMessage(visionSchemaJSON),
	}
}

func estimateSchema() llm.Schema {
	return llm.Schema{
		Name:        "estimate_interpretation",
		Description: "Structured interpretation of a carrier estimate document",
		Raw:         json.RawMessage(estimateSchemaJSON),
	}
}

func gapSchema() llm.Schema {
	return llm.Schema{
		Name:        "gap_analysis",
		Description: "Scope gaps between photo evidence and the carrier estimate",
		Raw:         json.RawMessage(gapSchemaJSON),
	}
}

func strategySchema() llm.Schema {
	return llm.Schema{
		Name:        "supplement_strategy",
		Description: "Proposed supplements with margin analysis",
		Raw:         json.RawMessage(strategySchemaJSON),
	}
}

func reviewSchema() llm.Schema {
	return llm.Schema{
		Name:        "review_result",
		Description: "Review verdict for the assembled supplement package",
		Raw:         json.RawMessage(reviewSchemaJSON),
	}
}
