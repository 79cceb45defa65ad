// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// LoopState is the review-loop controller state.
type LoopState string

const (
	StateReviewing        LoopState = "reviewing"
	StateAwaitingRerun    LoopState = "awaiting_rerun"
	StateReadyForDelivery LoopState = "ready_for_delivery"
	StateEscalated        LoopState = "escalated"
	StateBudgetExhausted  LoopState = "budget_exhausted"
)

// rerunFunc re-executes one agent stage with reviewer instructions,
// updating the run context in place.
type rerunFunc func(ctx context.Context, instructions string) error

// reviewLoop drives review cycles until a terminal state.
//
// Decision precedence after each review (highest first):
//
//  1. budget exhausted            → BudgetExhausted
//  2. approved && ready           → ReadyForDelivery
//  3. approved && !ready          → Escalated (no further cycles; an
//     approved package the reviewer will not release needs a human)
//  4. reruns requested && cycle < MaxReviewCycles → execute eligible
//     reruns (cascade-expanded, topological order), next cycle
//  5. otherwise                   → Escalated
//
// Adjustments are applied on every cycle before the precedence check.
type reviewLoop struct {
	review      Invoker[ReviewInput, *datatypes.ReviewResult]
	reruns      map[datatypes.AgentName]rerunFunc
	budget      *Budget
	limits      Limits
	logger      *slog.Logger
	rerunCounts map[datatypes.AgentName]int
}

func newReviewLoop(review Invoker[ReviewInput, *datatypes.ReviewResult], reruns map[datatypes.AgentName]rerunFunc, budget *Budget, limits Limits, logger *slog.Logger) *reviewLoop {
	return &reviewLoop{
		review:      review,
		reruns:      reruns,
		budget:      budget,
		limits:      limits,
		logger:      logger,
		rerunCounts: make(map[datatypes.AgentName]int),
	}
}

// Run executes review cycles against pctx until terminal. Non-budget
// invocation failures are returned to the scheduler and fail the job.
func (l *reviewLoop) Run(ctx context.Context, pctx *Context) (LoopState, error) {
	state := StateReviewing
	for cycle := 1; ; cycle++ {
		pctx.ReviewCycle = cycle
		l.logger.Info("review cycle starting",
			"cycle", cycle, "state", string(state), "budget_remaining", l.budget.Remaining())

		review, err := InvokeWithRepair(ctx, l.budget, "review",
			func(ctx context.Context, hint string) (string, error) {
				return l.review.Invoke(ctx, ReviewInput{
					Job:       pctx.Job,
					Evidence:  pctx.Evidence,
					Estimate:  pctx.Estimate,
					Gaps:      pctx.Gaps,
					Strategy:  pctx.Strategy,
					Cycle:     cycle,
					MaxCycles: l.limits.MaxReviewCycles,
					History:   pctx.ReviewHistory,
				}, hint)
			},
			l.review.Decode,
		)
		if err != nil {
			if KindOf(err) == KindBudgetExhausted {
				l.flagBudgetExhausted(pctx, "review agent could not run")
				return StateBudgetExhausted, nil
			}
			return state, err
		}

		pctx.Review = review
		pctx.ReviewHistory = append(pctx.ReviewHistory, review)
		pctx.Flags = append(pctx.Flags, review.HumanFlags...)

		applyAdjustments(pctx, review.AdjustmentsRequested, l.logger)

		// Rule 1: budget exhaustion beats everything, including approval.
		if l.budget.Exhausted() {
			l.flagBudgetExhausted(pctx, "call budget consumed during review")
			return StateBudgetExhausted, nil
		}

		// Rule 2: approved and releasable.
		if review.Approved && review.ReadyForDelivery {
			return StateReadyForDelivery, nil
		}

		// Rule 3: approved but held back. Burning another cycle cannot
		// change the reviewer's mind about readiness; hand to a human.
		if review.Approved && !review.ReadyForDelivery {
			pctx.AddFlag(datatypes.HumanFlag{
				FlagID:            "approved_not_ready",
				Severity:          "warning",
				Reason:            "package approved but not marked ready for delivery",
				Context:           review.OverallAssessment,
				RecommendedAction: "confirm delivery readiness manually",
			})
			return StateEscalated, nil
		}

		// Rule 4: actionable reruns within the cycle allowance.
		if len(review.RerunsRequested) > 0 && cycle < l.limits.MaxReviewCycles {
			eligible := l.filterReruns(pctx, review.RerunsRequested)
			if len(eligible) > 0 {
				state = StateAwaitingRerun
				st, err := l.executeReruns(ctx, pctx, eligible)
				if err != nil || st != "" {
					return st, err
				}
				state = StateReviewing
				continue
			}
		}

		// Rule 5: nothing actionable remains.
		pctx.AddFlag(datatypes.HumanFlag{
			FlagID:            "review_cycles_exhausted",
			Severity:          "critical",
			Reason:            "review loop ended without an approved, deliverable package",
			Context:           review.OverallAssessment,
			RecommendedAction: "review the supplement package manually",
		})
		return StateEscalated, nil
	}
}

// filterReruns enforces the per-agent rerun cap. Requests past the cap
// are converted to warning flags instead of executing.
func (l *reviewLoop) filterReruns(pctx *Context, requests []datatypes.RerunRequest) []datatypes.RerunRequest {
	eligible := make([]datatypes.RerunRequest, 0, len(requests))
	for _, req := range requests {
		if l.rerunCounts[req.TargetAgent] >= l.limits.MaxRerunsPerAgent {
			l.logger.Warn("rerun request over per-agent cap",
				"agent", string(req.TargetAgent), "request_id", req.RequestID)
			pctx.AddFlag(datatypes.HumanFlag{
				FlagID:            "rerun_cap_" + req.RequestID,
				Severity:          "warning",
				Reason:            "rerun requested beyond per-agent limit",
				Context:           string(req.TargetAgent) + ": " + req.Reason,
				RecommendedAction: "address the reviewer's concern manually",
			})
			continue
		}
		eligible = append(eligible, req)
	}
	return eligible
}

// executeReruns expands the eligible requests through the cascade and
// runs the result set in topological order. The returned state is empty
// when the loop should continue with the next review cycle.
func (l *reviewLoop) executeReruns(ctx context.Context, pctx *Context, eligible []datatypes.RerunRequest) (LoopState, error) {
	targets := make([]datatypes.AgentName, 0, len(eligible))
	instructions := make(map[datatypes.AgentName][]string, len(eligible))
	for _, req := range eligible {
		targets = append(targets, req.TargetAgent)
		instructions[req.TargetAgent] = append(instructions[req.TargetAgent], req.Instructions)
		l.rerunCounts[req.TargetAgent]++
	}

	expanded := ExpandCascade(targets)
	l.logger.Info("executing reruns", "requested", len(targets), "expanded", len(expanded))

	for _, agent := range expanded {
		run, ok := l.reruns[agent]
		if !ok {
			l.logger.Error("no rerun executor for agent", "agent", string(agent))
			continue
		}
		// Cascaded dependents rerun without extra instructions; they
		// just recompute over the refreshed upstream output.
		instr := strings.Join(instructions[agent], "\n")
		if err := run(ctx, instr); err != nil {
			if KindOf(err) == KindBudgetExhausted {
				l.flagBudgetExhausted(pctx, "call budget consumed during rerun of "+string(agent))
				return StateBudgetExhausted, nil
			}
			return StateAwaitingRerun, err
		}
	}
	return "", nil
}

func (l *reviewLoop) flagBudgetExhausted(pctx *Context, context string) {
	l.logger.Warn("review loop terminating on exhausted budget",
		"used", l.budget.Used(), "cycle", pctx.ReviewCycle)
	pctx.AddFlag(datatypes.HumanFlag{
		FlagID:            "budget_exhausted",
		Severity:          "critical",
		Reason:            "LLM call budget exhausted before an approved package",
		Context:           context,
		RecommendedAction: "review the partial supplement package manually",
	})
}
