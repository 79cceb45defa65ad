// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store keeps job records for the API surface. It implements
// the pipeline's Recorder so status transitions and terminal outcomes
// land here without the pipeline knowing about storage.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridgelineai/ridgeline/services/orchestrator/datatypes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
)

var (
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned for decisions on a job whose
	// status does not admit them, e.g. approving a completed job.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Record is everything the store holds about one job.
type Record struct {
	Job       *datatypes.Job      `json:"job"`
	Status    datatypes.JobStatus `json:"status"`
	Stage     string              `json:"stage,omitempty"`
	Error     string              `json:"error,omitempty"`
	Decision  string              `json:"decision,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Outcome   *pipeline.Outcome   `json:"-"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status  datatypes.JobStatus
	Carrier string
	Limit   int
	Offset  int
}

// JobStore is an in-memory job registry safe for concurrent use.
//
// Photo bytes and the estimate PDF live on the Job and are retained for
// the record's lifetime; eviction is the deployment's restart policy.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Record
}

var _ pipeline.Recorder = (*JobStore)(nil)

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Record)}
}

// NewJobID mints a job identifier.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create registers a new job in the queued state.
func (s *JobStore) Create(job *datatypes.Job) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return nil, fmt.Errorf("job %s already exists", job.JobID)
	}
	now := time.Now().UTC()
	rec := &Record{
		Job:       job,
		Status:    datatypes.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.JobID] = rec
	return rec.clone(), nil
}

// Get returns a copy of the record.
func (s *JobStore) Get(jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return rec.clone(), nil
}

// List returns records matching the filter, newest first, plus the
// total match count before pagination.
func (s *JobStore) List(filter ListFilter) ([]*Record, int) {
	s.mu.RLock()
	matched := make([]*Record, 0, len(s.jobs))
	for _, rec := range s.jobs {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Carrier != "" && !strings.EqualFold(rec.Job.Metadata.Carrier, filter.Carrier) {
			continue
		}
		matched = append(matched, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Record{}, total
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total
}

// SetProcessing implements pipeline.Recorder.
func (s *JobStore) SetProcessing(jobID, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return
	}
	rec.Status = datatypes.StatusProcessing
	rec.Stage = stage
	rec.UpdatedAt = time.Now().UTC()
}

// SetOutcome implements pipeline.Recorder.
func (s *JobStore) SetOutcome(jobID string, out *pipeline.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return
	}
	rec.Status = out.Status
	rec.Stage = ""
	rec.Error = out.Error
	rec.Outcome = out
	rec.UpdatedAt = time.Now().UTC()
}

// SetCancelled marks a job cancelled before its run observed the flag,
// so the API reflects the decision immediately.
func (s *JobStore) SetCancelled(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, rec.Status)
	}
	rec.Status = datatypes.StatusCancelled
	rec.Stage = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Decide records the human approve/reject decision on an escalated job.
func (s *JobStore) Decide(jobID string, approve bool, note string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if rec.Status != datatypes.StatusEscalated {
		return nil, fmt.Errorf("%w: decisions require an escalated job, got %s",
			ErrInvalidTransition, rec.Status)
	}
	if approve {
		rec.Status = datatypes.StatusApproved
	} else {
		rec.Status = datatypes.StatusRejected
	}
	rec.Decision = note
	rec.UpdatedAt = time.Now().UTC()
	return rec.clone(), nil
}

// Count returns the number of stored jobs.
func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// clone returns a shallow copy. Job and Outcome are shared; both are
// treated as immutable once stored.
func (r *Record) clone() *Record {
	cp := *r
	return &cp
}
