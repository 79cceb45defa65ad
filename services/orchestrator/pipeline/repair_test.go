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
	"testing"
)

// TestInvokeWithRepairFirstTry verifies a clean invocation consumes one
// budget call and decodes without a repair round trip.
func TestInvokeWithRepairFirstTry(t *testing.T) {
	budget := NewBudget(5)
	invokes := 0

	out, err := InvokeWithRepair(context.Background(), budget, "estimate",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			if hint != "" {
				t.Errorf("first invocation got repair hint %q, want empty", hint)
			}
			return "raw", nil
		},
		func(raw string) (int, error) { return 42, nil },
	)
	if err != nil {
		t.Fatalf("InvokeWithRepair failed: %v", err)
	}
	if out != 42 {
		t.Errorf("out = %d, want 42", out)
	}
	if invokes != 1 {
		t.Errorf("invocations = %d, want 1", invokes)
	}
	if got := budget.Used(); got != 1 {
		t.Errorf("budget used = %d, want 1", got)
	}
}

// TestInvokeWithRepairRecovers verifies one repair retry carries the
// decode error as the hint and succeeds.
func TestInvokeWithRepairRecovers(t *testing.T) {
	budget := NewBudget(5)
	invokes := 0
	decodeErr := errors.New("missing field photo_id")

	out, err := InvokeWithRepair(context.Background(), budget, "vision",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			if invokes == 2 && hint != decodeErr.Error() {
				t.Errorf("repair hint = %q, want %q", hint, decodeErr.Error())
			}
			return fmt.Sprintf("attempt-%d", invokes), nil
		},
		func(raw string) (string, error) {
			if raw == "attempt-1" {
				return "", decodeErr
			}
			return "fixed", nil
		},
	)
	if err != nil {
		t.Fatalf("InvokeWithRepair failed: %v", err)
	}
	if out != "fixed" {
		t.Errorf("out = %q, want %q", out, "fixed")
	}
	if invokes != 2 {
		t.Errorf("invocations = %d, want 2", invokes)
	}
	if got := budget.Used(); got != 2 {
		t.Errorf("budget used = %d, want 2", got)
	}
}

// TestInvokeWithRepairSecondFailureIsFinal verifies there is never a
// second repair attempt: two decode failures end in KindInvalidOutput.
func TestInvokeWithRepairSecondFailureIsFinal(t *testing.T) {
	budget := NewBudget(5)
	invokes := 0

	_, err := InvokeWithRepair(context.Background(), budget, "gap",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			return "garbage", nil
		},
		func(raw string) (int, error) { return 0, errors.New("not json") },
	)
	if err == nil {
		t.Fatal("expected error after two decode failures")
	}
	if kind := KindOf(err); kind != KindInvalidOutput {
		t.Errorf("error kind = %q, want %q", kind, KindInvalidOutput)
	}
	if stage := StageOf(err); stage != "gap" {
		t.Errorf("error stage = %q, want %q", stage, "gap")
	}
	if invokes != 2 {
		t.Errorf("invocations = %d, want exactly 2", invokes)
	}
	if got := budget.Used(); got != 2 {
		t.Errorf("budget used = %d, want 2", got)
	}
}

// TestInvokeWithRepairBudgetEmpty verifies an empty budget blocks the
// call before any model invocation.
func TestInvokeWithRepairBudgetEmpty(t *testing.T) {
	budget := NewBudget(0)
	invokes := 0

	_, err := InvokeWithRepair(context.Background(), budget, "estimate",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			return "", nil
		},
		func(raw string) (int, error) { return 0, nil },
	)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if kind := KindOf(err); kind != KindBudgetExhausted {
		t.Errorf("error kind = %q, want %q", kind, KindBudgetExhausted)
	}
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Error("error should wrap ErrBudgetExhausted")
	}
	if invokes != 0 {
		t.Errorf("invocations = %d, want 0", invokes)
	}
}

// TestInvokeWithRepairBudgetEmptyBeforeRetry verifies repair respects
// the budget: a failed decode with no remaining calls escalates instead
// of retrying.
func TestInvokeWithRepairBudgetEmptyBeforeRetry(t *testing.T) {
	budget := NewBudget(1)
	invokes := 0

	_, err := InvokeWithRepair(context.Background(), budget, "strategist",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			return "garbage", nil
		},
		func(raw string) (int, error) { return 0, errors.New("not json") },
	)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if kind := KindOf(err); kind != KindBudgetExhausted {
		t.Errorf("error kind = %q, want %q", kind, KindBudgetExhausted)
	}
	if invokes != 1 {
		t.Errorf("invocations = %d, want 1", invokes)
	}
}

// TestInvokeWithRepairTransientNotRetried verifies transport failures
// surface immediately without a re-invocation.
func TestInvokeWithRepairTransientNotRetried(t *testing.T) {
	budget := NewBudget(5)
	invokes := 0
	providerErr := errors.New("connection reset by peer")

	_, err := InvokeWithRepair(context.Background(), budget, "review",
		func(ctx context.Context, hint string) (string, error) {
			invokes++
			return "", providerErr
		},
		func(raw string) (int, error) { return 0, nil },
	)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if kind := KindOf(err); kind != KindTransient {
		t.Errorf("error kind = %q, want %q", kind, KindTransient)
	}
	if !errors.Is(err, providerErr) {
		t.Error("error should wrap the provider error")
	}
	if invokes != 1 {
		t.Errorf("invocations = %d, want exactly 1", invokes)
	}
	if got := budget.Used(); got != 1 {
		t.Errorf("budget used = %d, want 1", got)
	}
}
