// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/viscache"
	"github.com/ridgelineai/ridgeline/services/tools"
)

const tracerName = "github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"

// =============================================================================
// Scheduler
// =============================================================================

// SchedulerConfig wires the scheduler's collaborators.
type SchedulerConfig struct {
	Agents    Agents
	Vision    VisionAnalyzer
	Cache     viscache.Cache
	Extractor tools.Extractor

	// Renderer is optional; without it reports stay HTML-only.
	Renderer tools.Renderer

	Limits Limits
	Logger *slog.Logger
}

// Scheduler runs the supplement pipeline for one job at a time. It is
// stateless across jobs and safe for concurrent Run calls.
type Scheduler struct {
	agents    Agents
	vision    VisionAnalyzer
	cache     viscache.Cache
	extractor tools.Extractor
	renderer  tools.Renderer
	limits    Limits
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewScheduler validates the configuration and builds a scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Vision == nil {
		return nil, errors.New("scheduler requires a vision analyzer")
	}
	if cfg.Agents.Estimate == nil || cfg.Agents.Gap == nil ||
		cfg.Agents.Strategist == nil || cfg.Agents.Review == nil {
		return nil, errors.New("scheduler requires estimate, gap, strategist, and review agents")
	}
	if cfg.Cache == nil {
		return nil, errors.New("scheduler requires a vision cache")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("scheduler requires a PDF extractor")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		agents:    cfg.Agents,
		vision:    cfg.Vision,
		cache:     cfg.Cache,
		extractor: cfg.Extractor,
		renderer:  cfg.Renderer,
		limits:    cfg.Limits.Normalize(),
		logger:    logger.With("component", "pipeline"),
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// RunOpts carries per-run callbacks supplied by the job manager.
type RunOpts struct {
	// Cancelled is polled at stage boundaries. A true return stops the
	// pipeline before the next stage starts; in-flight model calls are
	// never aborted.
	Cancelled func() bool

	// OnStage is invoked when a stage begins, for status reporting.
	OnStage func(stage string)
}

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	JobID       string
	Status      datatypes.JobStatus
	FailedStage string
	ErrorKind   Kind
	Error       string

	Evidence []datatypes.VisionEvidence
	Estimate *datatypes.EstimateInterpretation
	Gaps     *datatypes.GapAnalysis
	Strategy *datatypes.SupplementStrategy
	Review   *datatypes.ReviewResult
	Report   *datatypes.ReportArtifact
	Flags    []datatypes.HumanFlag

	LLMCalls     int
	ReviewCycles int
	Elapsed      time.Duration
}

// =============================================================================
// Run
// =============================================================================

// Run executes the full pipeline for job and always returns an Outcome.
//
// Stage failures propagate: downstream stages never start, in-flight
// sibling work finishes through errgroup semantics. Budget exhaustion
// anywhere maps to an escalated outcome rather than a failure, because
// the partial package is still worth a human's time.
func (s *Scheduler) Run(ctx context.Context, job *datatypes.Job, opts RunOpts) *Outcome {
	start := time.Now()
	metrics := observability.Default()
	metrics.JobStarted()
	defer metrics.JobFinished()

	ctx, span := s.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID),
			attribute.Int("photos", len(job.Photos)),
		))
	defer span.End()

	budget := NewBudget(s.limits.MaxTotalLLMCalls)
	pctx := NewContext(job)
	logger := s.logger.With("job_id", job.JobID)

	if out := s.checkCancel(pctx, budget, start, opts); out != nil {
		return out
	}

	// ---- prepare -----------------------------------------------------------
	if err := s.timed(ctx, "prepare", opts, func(ctx context.Context) error {
		text, err := s.extractor.ExtractText(ctx, job.InsuranceEstimate)
		if err != nil {
			return NewStageError("prepare", KindUpstreamMissing, err)
		}
		pctx.EstimateText = text
		return nil
	}); err != nil {
		return s.errorOutcome(pctx, budget, start, err)
	}

	if out := s.checkCancel(pctx, budget, start, opts); out != nil {
		return out
	}

	// ---- vision ∥ estimate -------------------------------------------------
	if err := s.timed(ctx, "analysis", opts, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for i := range job.Photos {
			g.Go(func() error {
				return s.analyzePhoto(gctx, budget, pctx, i, "")
			})
		}
		g.Go(func() error {
			return s.runEstimate(gctx, budget, pctx, "")
		})
		return g.Wait()
	}); err != nil {
		return s.errorOutcome(pctx, budget, start, err)
	}

	if out := s.checkCancel(pctx, budget, start, opts); out != nil {
		return out
	}

	// ---- gap ---------------------------------------------------------------
	if err := s.timed(ctx, "gap", opts, func(ctx context.Context) error {
		return s.runGap(ctx, budget, pctx, "")
	}); err != nil {
		return s.errorOutcome(pctx, budget, start, err)
	}

	if out := s.checkCancel(pctx, budget, start, opts); out != nil {
		return out
	}

	// ---- strategist --------------------------------------------------------
	if err := s.timed(ctx, "strategist", opts, func(ctx context.Context) error {
		return s.runStrategist(ctx, budget, pctx, "")
	}); err != nil {
		return s.errorOutcome(pctx, budget, start, err)
	}

	if out := s.checkCancel(pctx, budget, start, opts); out != nil {
		return out
	}

	// ---- review loop -------------------------------------------------------
	var state LoopState
	if err := s.timed(ctx, "review", opts, func(ctx context.Context) error {
		loop := newReviewLoop(s.agents.Review, s.rerunFuncs(budget, pctx), budget, s.limits, logger)
		var loopErr error
		state, loopErr = loop.Run(ctx, pctx)
		return loopErr
	}); err != nil {
		return s.errorOutcome(pctx, budget, start, err)
	}
	metrics.RecordReviewCycles(pctx.ReviewCycle)

	// ---- report ------------------------------------------------------------
	// A budget-exhausted loop must not invoke any further model stage.
	if job.GenerateReport && state != StateBudgetExhausted {
		if err := s.timed(ctx, "report", opts, func(ctx context.Context) error {
			return s.runReport(ctx, budget, pctx)
		}); err != nil {
			if state == StateReadyForDelivery && KindOf(err) != KindBudgetExhausted {
				return s.errorOutcome(pctx, budget, start, err)
			}
			logger.Warn("report generation skipped on escalation path", "error", err)
			pctx.AddFlag(datatypes.HumanFlag{
				FlagID:            "report_unavailable",
				Severity:          "warning",
				Reason:            "report could not be generated",
				Context:           err.Error(),
				RecommendedAction: "assemble the delivery package manually",
			})
		}
	}

	out := s.terminalOutcome(pctx, budget, start, state)
	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("llm_calls", out.LLMCalls),
	)
	logger.Info("pipeline finished",
		"status", string(out.Status),
		"llm_calls", out.LLMCalls,
		"review_cycles", out.ReviewCycles,
		"elapsed", out.Elapsed)
	metrics.RecordJob(string(out.Status))
	return out
}

// =============================================================================
// Stage Runners
// =============================================================================

// analyzePhoto resolves one photo through the vision cache. A hit
// consumes no budget; a miss runs the framework under the photo
// timeout. Cached entries carry the photo ID of the first submitter,
// so the ID is always overwritten for this job.
func (s *Scheduler) analyzePhoto(ctx context.Context, budget *Budget, pctx *Context, i int, instructions string) error {
	photo := pctx.Job.Photos[i]
	ctx, cancel := context.WithTimeout(ctx, s.limits.PhotoTimeout)
	defer cancel()

	key := viscache.KeyFor(s.vision.Framework(), photo.Data)
	ev, hit, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (datatypes.VisionEvidence, error) {
		return s.vision.Analyze(ctx, budget, VisionInput{
			Photo:        photo,
			Job:          pctx.Job,
			Instructions: instructions,
		})
	})
	if err != nil {
		return err
	}
	if hit {
		observability.Default().RecordCacheHit()
	} else {
		observability.Default().RecordCacheMiss()
	}
	ev.PhotoID = photo.PhotoID
	pctx.Evidence[i] = ev
	return nil
}

func (s *Scheduler) runEstimate(ctx context.Context, budget *Budget, pctx *Context, instructions string) error {
	est, err := InvokeWithRepair(ctx, budget, "estimate",
		func(ctx context.Context, hint string) (string, error) {
			return s.agents.Estimate.Invoke(ctx, EstimateInput{
				Job:          pctx.Job,
				EstimateText: pctx.EstimateText,
				Instructions: instructions,
			}, hint)
		},
		s.agents.Estimate.Decode,
	)
	if err != nil {
		return err
	}
	pctx.Estimate = est
	return nil
}

func (s *Scheduler) runGap(ctx context.Context, budget *Budget, pctx *Context, instructions string) error {
	if pctx.Estimate == nil || len(pctx.Evidence) == 0 {
		return NewStageError("gap", KindUpstreamMissing, ErrUpstreamMissing)
	}
	gaps, err := InvokeWithRepair(ctx, budget, "gap",
		func(ctx context.Context, hint string) (string, error) {
			return s.agents.Gap.Invoke(ctx, GapInput{
				Job:          pctx.Job,
				Evidence:     pctx.Evidence,
				Estimate:     pctx.Estimate,
				Instructions: instructions,
			}, hint)
		},
		s.agents.Gap.Decode,
	)
	if err != nil {
		return err
	}
	pctx.Gaps = gaps
	return nil
}

func (s *Scheduler) runStrategist(ctx context.Context, budget *Budget, pctx *Context, instructions string) error {
	if pctx.Gaps == nil || pctx.Estimate == nil {
		return NewStageError("strategist", KindUpstreamMissing, ErrUpstreamMissing)
	}
	strategy, err := InvokeWithRepair(ctx, budget, "strategist",
		func(ctx context.Context, hint string) (string, error) {
			return s.agents.Strategist.Invoke(ctx, StrategistInput{
				Job:          pctx.Job,
				Gaps:         pctx.Gaps,
				Estimate:     pctx.Estimate,
				Instructions: instructions,
			}, hint)
		},
		s.agents.Strategist.Decode,
	)
	if err != nil {
		return err
	}
	pctx.Strategy = strategy
	return nil
}

func (s *Scheduler) runReport(ctx context.Context, budget *Budget, pctx *Context) error {
	html, err := InvokeWithRepair(ctx, budget, "report",
		func(ctx context.Context, hint string) (string, error) {
			return s.agents.Report.Invoke(ctx, ReportInput{
				Job:      pctx.Job,
				Evidence: pctx.Evidence,
				Estimate: pctx.Estimate,
				Gaps:     pctx.Gaps,
				Strategy: pctx.Strategy,
				Review:   pctx.Review,
				Flags:    pctx.Flags,
			}, hint)
		},
		s.agents.Report.Decode,
	)
	if err != nil {
		return err
	}
	artifact := &datatypes.ReportArtifact{HTML: html}
	if s.renderer != nil {
		pdf, renderErr := s.renderer.RenderPDF(ctx, html)
		if renderErr != nil {
			s.logger.Warn("pdf rendering failed, keeping html report",
				"job_id", pctx.Job.JobID, "error", renderErr)
		} else {
			artifact.PDF = pdf
		}
	}
	pctx.Report = artifact
	return nil
}

// rerunFuncs builds the review loop's per-agent rerun executors, bound
// to this run's budget and context.
func (s *Scheduler) rerunFuncs(budget *Budget, pctx *Context) map[datatypes.AgentName]rerunFunc {
	return map[datatypes.AgentName]rerunFunc{
		datatypes.AgentVision: func(ctx context.Context, instructions string) error {
			g, gctx := errgroup.WithContext(ctx)
			for i := range pctx.Job.Photos {
				g.Go(func() error {
					return s.analyzePhoto(gctx, budget, pctx, i, instructions)
				})
			}
			return g.Wait()
		},
		datatypes.AgentEstimate: func(ctx context.Context, instructions string) error {
			return s.runEstimate(ctx, budget, pctx, instructions)
		},
		datatypes.AgentGap: func(ctx context.Context, instructions string) error {
			return s.runGap(ctx, budget, pctx, instructions)
		},
		datatypes.AgentStrategist: func(ctx context.Context, instructions string) error {
			return s.runStrategist(ctx, budget, pctx, instructions)
		},
	}
}

// =============================================================================
// Helpers
// =============================================================================

// timed wraps a stage with status reporting, tracing, and metrics.
func (s *Scheduler) timed(ctx context.Context, stage string, opts RunOpts, fn func(context.Context) error) error {
	if opts.OnStage != nil {
		opts.OnStage(stage)
	}
	ctx, span := s.tracer.Start(ctx, "pipeline."+stage)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Default().RecordStage(stage, status, time.Since(start).Seconds())
	return err
}

func (s *Scheduler) checkCancel(pctx *Context, budget *Budget, start time.Time, opts RunOpts) *Outcome {
	if opts.Cancelled == nil || !opts.Cancelled() {
		return nil
	}
	out := s.snapshot(pctx, budget, start)
	out.Status = datatypes.StatusCancelled
	out.Error = ErrJobCancelled.Error()
	return out
}

// errorOutcome maps a stage error onto a terminal outcome. Budget
// exhaustion escalates with the partial package; everything else fails.
func (s *Scheduler) errorOutcome(pctx *Context, budget *Budget, start time.Time, err error) *Outcome {
	out := s.snapshot(pctx, budget, start)
	out.FailedStage = StageOf(err)
	out.ErrorKind = KindOf(err)
	out.Error = err.Error()

	if out.ErrorKind == KindBudgetExhausted {
		out.Status = datatypes.StatusEscalated
		out.Flags = append(out.Flags, datatypes.HumanFlag{
			FlagID:            "budget_exhausted",
			Severity:          "critical",
			Reason:            "LLM call budget exhausted mid-pipeline",
			Context:           fmt.Sprintf("stage %s, %d calls used", out.FailedStage, out.LLMCalls),
			RecommendedAction: "review the partial results manually",
		})
	} else {
		out.Status = datatypes.StatusFailed
	}
	observability.Default().RecordJob(string(out.Status))
	s.logger.Error("pipeline run ended with error",
		"job_id", pctx.Job.JobID,
		"stage", out.FailedStage,
		"kind", string(out.ErrorKind),
		"error", out.Error)
	return out
}

func (s *Scheduler) terminalOutcome(pctx *Context, budget *Budget, start time.Time, state LoopState) *Outcome {
	out := s.snapshot(pctx, budget, start)
	switch state {
	case StateReadyForDelivery:
		out.Status = datatypes.StatusCompleted
	case StateBudgetExhausted:
		out.Status = datatypes.StatusEscalated
		out.ErrorKind = KindBudgetExhausted
	default:
		out.Status = datatypes.StatusEscalated
	}
	return out
}

func (s *Scheduler) snapshot(pctx *Context, budget *Budget, start time.Time) *Outcome {
	return &Outcome{
		JobID:        pctx.Job.JobID,
		Evidence:     pctx.Evidence,
		Estimate:     pctx.Estimate,
		Gaps:         pctx.Gaps,
		Strategy:     pctx.Strategy,
		Review:       pctx.Review,
		Report:       pctx.Report,
		Flags:        pctx.Flags,
		LLMCalls:     budget.Used(),
		ReviewCycles: pctx.ReviewCycle,
		Elapsed:      time.Since(start),
	}
}
