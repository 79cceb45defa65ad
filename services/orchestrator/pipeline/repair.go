// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"

	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
)

// InvokeFunc performs one model call. A non-empty repairHint describes
// the validation failure of the previous attempt and is folded into the
// prompt by the agent.
type InvokeFunc func(ctx context.Context, repairHint string) (string, error)

// DecodeFunc parses and validates raw model output into a typed result.
type DecodeFunc[T any] func(raw string) (T, error)

// InvokeWithRepair runs a model-backed invocation under the job budget
// with exactly one validation-repair retry.
//
// Sequence:
//
//  1. Reserve one call; failure is KindBudgetExhausted and nothing is
//     consumed.
//  2. Invoke. Transport failures are KindTransient; the provider has
//     already retried transient conditions internally, this wrapper
//     never re-invokes on them.
//  3. Decode. Success returns the typed value.
//  4. On decode failure, reserve one more call and re-invoke with the
//     validation error as the repair hint. A second decode failure is
//     KindInvalidOutput. There is never a second repair attempt.
func InvokeWithRepair[T any](ctx context.Context, budget *Budget, stage string, invoke InvokeFunc, decode DecodeFunc[T]) (T, error) {
	var zero T

	if !budget.Reserve(1) {
		return zero, NewStageError(stage, KindBudgetExhausted, ErrBudgetExhausted)
	}
	raw, err := invoke(ctx, "")
	if err != nil {
		return zero, NewStageError(stage, KindTransient, err)
	}

	out, decodeErr := decode(raw)
	if decodeErr == nil {
		return out, nil
	}

	observability.Default().RecordRepair(stage)
	if !budget.Reserve(1) {
		return zero, NewStageError(stage, KindBudgetExhausted, ErrBudgetExhausted)
	}
	raw, err = invoke(ctx, decodeErr.Error())
	if err != nil {
		return zero, NewStageError(stage, KindTransient, err)
	}

	out, decodeErr = decode(raw)
	if decodeErr != nil {
		return zero, NewStageError(stage, KindInvalidOutput, decodeErr)
	}
	return out, nil
}
