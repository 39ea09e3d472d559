/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package budget

import "testing"

func TestDeductReducesAvailable(t *testing.T) {
	tr := NewTracker("parent", 1.00)
	if err := tr.Deduct(0.25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal := tr.Balance()
	if bal.Available != 0.75 {
		t.Errorf("expected available 0.75, got %f", bal.Available)
	}
}

func TestDeductRejectsOverdraw(t *testing.T) {
	tr := NewTracker("c", 1.00)
	if err := tr.Deduct(1.01); err == nil {
		t.Error("expected error deducting beyond available")
	}
	if tr.Balance().Available != 1.00 {
		t.Error("failed deduct must not mutate state")
	}
}

func TestDelegateThenReclaim(t *testing.T) {
	tr := NewTracker("parent", 1.00)
	if err := tr.Delegate(0.25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Balance().Available != 0.75 {
		t.Errorf("expected available 0.75 after delegate, got %f", tr.Balance().Available)
	}
	if err := tr.Reclaim(0.25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Balance().Available != 1.00 {
		t.Errorf("expected available restored to 1.00, got %f", tr.Balance().Available)
	}
}

func TestAvailableInvariantNeverNegative(t *testing.T) {
	tr := NewTracker("c", 1.00)
	_ = tr.Deduct(0.50)
	_ = tr.Delegate(0.50)
	if err := tr.Deduct(0.01); err == nil {
		t.Error("expected deduct to be rejected once available is exhausted")
	}
	if tr.Balance().Available < 0 {
		t.Errorf("available went negative: %f", tr.Balance().Available)
	}
}

func TestSpawnBudgetScenario(t *testing.T) {
	// Parent remaining $1.00; spawn_cell budget=0.25.
	tr := NewTracker("parent", 1.00)
	childBudget := 0.25
	if err := tr.Delegate(childBudget); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Remaining() != 1.00 {
		t.Errorf("Remaining() should reflect allocated-spent only, got %f", tr.Remaining())
	}
	if tr.Balance().Available != 0.75 {
		t.Errorf("expected parent available 0.75, got %f", tr.Balance().Available)
	}
}

func TestTopUpIncreasesAllocated(t *testing.T) {
	tr := NewTracker("c", 1.00)
	if err := tr.TopUp(0.50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Balance().Allocated != 1.50 {
		t.Errorf("expected allocated 1.50, got %f", tr.Balance().Allocated)
	}
}

func TestExceededOnTotalCost(t *testing.T) {
	tr := NewTracker("c", 1.00)
	_ = tr.Deduct(1.00)
	max := 1.00
	exceeded, reason := tr.Exceeded(&max, nil)
	if !exceeded || reason == "" {
		t.Error("expected budget to be reported exceeded")
	}
}

func TestLedgerRecordsEveryOp(t *testing.T) {
	tr := NewTracker("c", 1.00)
	_ = tr.Deduct(0.1)
	_ = tr.Delegate(0.1)
	_ = tr.Reclaim(0.1)
	_ = tr.TopUp(0.1)
	ops := map[Op]bool{}
	for _, e := range tr.Ledger() {
		ops[e.Op] = true
	}
	for _, want := range []Op{OpAllocate, OpSpend, OpDelegate, OpReclaim, OpTopUp} {
		if !ops[want] {
			t.Errorf("expected ledger to contain op %q", want)
		}
	}
}
