// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
)

// Recorder receives status transitions and terminal outcomes. The job
// store implements it; the pipeline never talks to storage directly.
type Recorder interface {
	SetProcessing(jobID, stage string)
	SetOutcome(jobID string, out *Outcome)
}

// JobHandle identifies an accepted asynchronous run.
type JobHandle struct {
	JobID string
	Done  <-chan struct{}
}

// ErrDuplicateJob is returned when a job ID is already running.
var ErrDuplicateJob = errors.New("job already submitted")

// Manager owns the asynchronous execution of pipeline runs: one
// goroutine per submitted job, bounded by the job timeout, cancellable
// at stage boundaries.
type Manager struct {
	sched    *Scheduler
	recorder Recorder
	limits   Limits
	logger   *slog.Logger
	client   *http.Client

	mu   sync.Mutex
	runs map[string]*jobRun
}

type jobRun struct {
	cancelled atomic.Bool
	done      chan struct{}
}

// NewManager builds a manager around a scheduler and a recorder.
func NewManager(sched *Scheduler, recorder Recorder, limits Limits, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sched:    sched,
		recorder: recorder,
		limits:   limits.Normalize(),
		logger:   logger.With("component", "job_manager"),
		client:   &http.Client{Timeout: 30 * time.Second},
		runs:     make(map[string]*jobRun),
	}
}

// Submit validates the job and starts its pipeline run asynchronously.
// The returned handle's Done channel closes when the run reaches a
// terminal outcome.
func (m *Manager) Submit(job *datatypes.Job) (*JobHandle, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	run := &jobRun{done: make(chan struct{})}
	m.mu.Lock()
	if _, exists := m.runs[job.JobID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.JobID)
	}
	m.runs[job.JobID] = run
	m.mu.Unlock()

	go m.execute(job, run)

	return &JobHandle{JobID: job.JobID, Done: run.done}, nil
}

func (m *Manager) execute(job *datatypes.Job, run *jobRun) {
	defer close(run.done)
	defer func() {
		m.mu.Lock()
		delete(m.runs, job.JobID)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.limits.JobTimeout)
	defer cancel()

	out := m.sched.Run(ctx, job, RunOpts{
		Cancelled: run.cancelled.Load,
		OnStage: func(stage string) {
			m.recorder.SetProcessing(job.JobID, stage)
		},
	})
	m.recorder.SetOutcome(job.JobID, out)

	if job.CallbackURL != "" {
		m.notify(job.CallbackURL, out)
	}
}

// Cancel flags a running job for cancellation. The pipeline observes
// the flag at its next stage boundary; in-flight model calls finish.
// Returns false when the job is not currently running.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	run, ok := m.runs[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	run.cancelled.Store(true)
	m.logger.Info("job flagged for cancellation", "job_id", jobID)
	return true
}

// Running reports whether the job currently has an active run.
func (m *Manager) Running(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[jobID]
	return ok
}

// notify POSTs a terminal summary to the submitter's callback URL.
// Delivery is best effort.
func (m *Manager) notify(url string, out *Outcome) {
	payload, err := json.Marshal(map[string]any{
		"job_id":        out.JobID,
		"status":        string(out.Status),
		"review_cycles": out.ReviewCycles,
		"llm_calls":     out.LLMCalls,
		"error":         out.Error,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		m.logger.Warn("callback request build failed", "job_id", out.JobID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("callback delivery failed", "job_id", out.JobID, "error", err)
		return
	}
	resp.Body.Close()
	m.logger.Info("callback delivered", "job_id", out.JobID, "status_code", resp.StatusCode)
}
