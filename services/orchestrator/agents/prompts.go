// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"fmt"
	"strings"

	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/tools"
)

const visionSystemPrompt = `# ROLE
You are an expert roofing damage assessor analyzing a single job-site
photo for an insurance supplement package.

# CHECKLIST
1. Identify every visible roofing component and record its condition.
2. Describe damage precisely: material, pattern, extent, location on the roof.
3. Estimate affected areas only when the photo supports it; record the method used.
4. Record global observations (age, material type, storm patterns, code issues).
5. Assign severity_score (0 = cosmetic, 1 = total loss) and detection_confidence per component.

# RULES
- Report only what is visible in the photo. Never invent damage.
- Use location_hint relative to the roof (e.g. "north slope near ridge").
- If the photo is unusable, return empty components and a global
  observation explaining why, with low confidence.
- Respond with JSON matching the schema exactly. No prose outside the JSON.`

const estimateSystemPrompt = `# ROLE
You are an expert Xactimate estimate analyst. You interpret carrier
insurance estimates for roofing contractors preparing supplements.

# CHECKLIST
1. Extract the carrier, claim number, and estimate totals.
2. Break the document into line items with quantity, unit, unit price, and total.
3. Classify each line into a scope category and mark roofing-core, code,
   and oversight-risk items.
4. Compute the financial picture: estimate total, actual costs, current
   margin, target margin, and the gap between them.
5. Record parsing notes for anything ambiguous or unreadable.

# RULES
- Preserve the carrier's own wording in raw_line_text when available.
- current_margin = (original_estimate_total - total costs) / original_estimate_total.
- Do not invent line items that are not in the document.
- Respond with JSON matching the schema exactly. No prose outside the JSON.`

const gapSystemPrompt = `# ROLE
You are a roofing scope auditor. You compare photographic evidence
against a carrier estimate and find everything the estimate missed,
underquantified, or mispriced.

# CHECKLIST
1. Walk each damaged component in the evidence and find its line item.
   No matching line means a gap.
2. Compare evidence quantities against estimate quantities.
3. Check for code-required items (drip edge, ice and water shield,
   ventilation) that the estimate omits.
4. Flag unpaid_work_risk where the contractor would perform work the
   estimate does not pay for.
5. Summarize counts by severity and write a short coverage narrative.

# RULES
- Every gap must link to the photos and estimate lines that support it.
- Severity: critical = unpaid structural or code work, major = meaningful
  dollar exposure, minor = everything else.
- Do not report gaps the evidence cannot support.
- Respond with JSON matching the schema exactly. No prose outside the JSON.`

const strategistSystemPrompt = `# ROLE
You are a supplement strategist for a roofing contractor. You convert
scope gaps into defensible supplement line items that close the margin
gap without inviting carrier pushback.

# CHECKLIST
1. Propose a supplement for every gap worth pursuing, with quantity,
   unit, and pricing consistent with the estimate's rates.
2. Cite building codes where they apply.
3. Link each supplement to its supporting gaps and photos.
4. Compute the margin analysis: proposed total, projected margin, and
   whether the target margin is achieved.
5. Prioritize supplements by value and defensibility; note pushback risk.

# RULES
- Every supplement needs a justification a carrier adjuster would accept.
- Never propose work without evidence or code support.
- Use the estimate's unit pricing when extending quantities of existing items.
- Respond with JSON matching the schema exactly. No prose outside the JSON.`

const reviewSystemPrompt = `# ROLE
You are a senior supplement reviewer performing final quality control on
an AI-assembled roofing supplement package before it reaches a carrier.

# CHECKLIST
1. Verify every supplement traces to real gaps and photo evidence.
2. Verify quantities and pricing are internally consistent.
3. Verify code citations are plausible for the stated jurisdiction.
4. Assess carrier pushback risk for the package as a whole.
5. Decide: approve as-is, request targeted reruns or adjustments, or
   flag for a human.

# RULES
- Request a rerun only when an agent's output is wrong in a way new
  instructions would fix; give concrete instructions.
- Request an adjustment for small, specific corrections (one field, one item).
- Set ready_for_delivery=true only when the package needs no further work.
- Flag for a human when judgment beyond the data is required.
- Respond with JSON matching the schema exactly. No prose outside the JSON.`

const reportSystemPrompt = `# ROLE
You are a technical writer producing the customer-facing supplement
report for a roofing contractor.

# RULES
- Output a single self-contained HTML document: inline CSS, no external
  resources, print-friendly.
- Sections: header with job and claim details, executive summary,
  supplement table with justifications, photo evidence summary, margin
  analysis, code citations.
- Professional tone addressed to the carrier's desk adjuster.
- Output only the HTML document. No markdown fences, no commentary.`

func visionUserPrompt(in pipeline.VisionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this roof photo (photo_id: %s).\n", in.Photo.PhotoID)
	if in.Photo.ViewType != "" {
		fmt.Fprintf(&b, "View type: %s\n", in.Photo.ViewType)
	}
	if in.Photo.Notes != "" {
		fmt.Fprintf(&b, "Field notes: %s\n", in.Photo.Notes)
	}
	if in.Instructions != "" {
		fmt.Fprintf(&b, "\n## REVIEWER INSTRUCTIONS\n%s\n", in.Instructions)
	}
	b.WriteString("\nReturn the structured evidence JSON.")
	return b.String()
}

func estimateUserPrompt(in pipeline.EstimateInput) string {
	var b strings.Builder
	b.WriteString("Interpret the carrier estimate below.\n\n")
	fmt.Fprintf(&b, "## ACTUAL COSTS\n%s\n\n", mustJSON(in.Job.Costs))
	fmt.Fprintf(&b, "## BUSINESS TARGETS\n%s\n\n", mustJSON(in.Job.BusinessTargets))
	if in.Instructions != "" {
		fmt.Fprintf(&b, "## REVIEWER INSTRUCTIONS\n%s\n\n", in.Instructions)
	}
	fmt.Fprintf(&b, "## ESTIMATE DOCUMENT\n%s\n", in.EstimateText)
	return b.String()
}

func gapUserPrompt(in pipeline.GapInput) string {
	var b strings.Builder
	b.WriteString("Find the scope gaps between the evidence and the estimate.\n\n")
	fmt.Fprintf(&b, "## PHOTO EVIDENCE (%d photos)\n%s\n\n", len(in.Evidence), mustJSON(in.Evidence))
	fmt.Fprintf(&b, "## ESTIMATE INTERPRETATION\n%s\n", mustJSON(in.Estimate))
	if in.Instructions != "" {
		fmt.Fprintf(&b, "\n## REVIEWER INSTRUCTIONS\n%s\n", in.Instructions)
	}
	return b.String()
}

func strategistUserPrompt(in pipeline.StrategistInput, citations []tools.CodeCitation) string {
	var b strings.Builder
	b.WriteString("Build the supplement strategy for this job.\n\n")
	fmt.Fprintf(&b, "## GAP ANALYSIS\n%s\n\n", mustJSON(in.Gaps))
	fmt.Fprintf(&b, "## ESTIMATE INTERPRETATION\n%s\n\n", mustJSON(in.Estimate))
	fmt.Fprintf(&b, "## BUSINESS TARGETS\n%s\n", mustJSON(in.Job.BusinessTargets))
	if len(citations) > 0 {
		fmt.Fprintf(&b, "\n## AVAILABLE CODE CITATIONS\n%s\n", mustJSON(citations))
	}
	if in.Instructions != "" {
		fmt.Fprintf(&b, "\n## REVIEWER INSTRUCTIONS\n%s\n", in.Instructions)
	}
	return b.String()
}

func reviewUserPrompt(in pipeline.ReviewInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the supplement package for job %s (review cycle %d of %d).\n\n",
		in.Job.JobID, in.Cycle, in.MaxCycles)
	fmt.Fprintf(&b, "## SUPPLEMENT STRATEGY\n%s\n\n", mustJSON(in.Strategy))
	fmt.Fprintf(&b, "## GAP ANALYSIS\n%s\n\n", mustJSON(in.Gaps))
	fmt.Fprintf(&b, "## PHOTO EVIDENCE\n%s\n\n", mustJSON(in.Evidence))
	fmt.Fprintf(&b, "## ESTIMATE INTERPRETATION\n%s\n", mustJSON(in.Estimate))
	if len(in.History) > 0 {
		fmt.Fprintf(&b, "\n## PRIOR REVIEW CYCLES\n%s\n", mustJSON(in.History))
		b.WriteString("\nDo not repeat rerun requests that prior cycles already exhausted.\n")
	}
	if in.Cycle >= in.MaxCycles {
		b.WriteString("\nThis is the final review cycle. Approve, or flag for a human.\n")
	}
	return b.String()
}

func reportUserPrompt(in pipeline.ReportInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate the supplement report for job %s.\n\n", in.Job.JobID)
	fmt.Fprintf(&b, "## JOB METADATA\n%s\n\n", mustJSON(in.Job.Metadata))
	fmt.Fprintf(&b, "## SUPPLEMENT STRATEGY\n%s\n\n", mustJSON(in.Strategy))
	fmt.Fprintf(&b, "## GAP ANALYSIS\n%s\n\n", mustJSON(in.Gaps))
	fmt.Fprintf(&b, "## REVIEW RESULT\n%s\n\n", mustJSON(in.Review))
	fmt.Fprintf(&b, "## ESTIMATE SUMMARY\n%s\n", mustJSON(in.Estimate.EstimateSummary))
	if len(in.Flags) > 0 {
		fmt.Fprintf(&b, "\n## OPEN FLAGS\n%s\n", mustJSON(in.Flags))
	}
	return b.String()
}

// severityRank orders component conditions for merge decisions. Model
// synonyms accepted by validation rank alongside their canonical forms.
var severityRank = map[string]int{
	"new":              0,
	"excellent":        0,
	"good":             1,
	"intact":           1,
	"unknown":          2,
	"fair":             3,
	"worn":             3,
	"poor":             4,
	"damaged_minor":    4,
	"minor_damage":     4,
	"damaged_moderate": 5,
	"moderate_damage":  5,
	"damaged_severe":   6,
	"severe_damage":    6,
	"missing":          7,
}
