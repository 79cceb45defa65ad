// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure. The classification decides how the
// scheduler and review loop react: budget exhaustion escalates, invalid
// output fails the job, transient provider errors surface after the
// provider's own retries are spent.
type Kind string

const (
	KindInvalidOutput   Kind = "invalid_output"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindUpstreamMissing Kind = "upstream_dependency_missing"
	KindTransient       Kind = "transient_provider_error"
	KindReviewExhausted Kind = "review_cycles_exhausted"
)

// Sentinel errors wrapped into StageError values.
var (
	ErrBudgetExhausted = errors.New("llm call budget exhausted")
	ErrUpstreamMissing = errors.New("upstream dependency output missing")
	ErrJobCancelled    = errors.New("job cancelled")
)

// StageError carries the failing stage name and the failure kind
// alongside the underlying cause.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage and kind context.
func NewStageError(stage string, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain. Errors that do
// not carry a StageError report an empty kind.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StageOf extracts the failing stage name from an error chain.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
