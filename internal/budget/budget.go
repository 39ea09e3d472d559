/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package budget implements the per-Cell cost ledger: allocation,
// spend, delegation and reclamation, under the invariant
// available = allocated - spent - delegated >= 0.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// Op names one ledger operation kind.
type Op string

const (
	OpAllocate Op = "allocate"
	OpSpend    Op = "spend"
	OpDelegate Op = "delegate"
	OpReclaim  Op = "reclaim"
	OpTopUp    Op = "top_up"
)

// Entry is one immutable ledger record.
type Entry struct {
	Op     Op
	Amount float64
	At     time.Time
	Note   string
}

// Balance is the BudgetBalance value type, snapshotted from a
// Tracker.
type Balance struct {
	CellID    string
	Allocated float64
	Spent     float64
	Delegated float64
	Available float64
}

// Tracker is a per-Cell budget ledger. Mutated only from that Cell's own
// loop; the spawn validator reads it under lock.
type Tracker struct {
	mu sync.Mutex

	cellID    string
	allocated float64
	spent     float64
	delegated float64
	ledger    []Entry

	// hourWindowStart and hourSpent implement the tumbling maxCostPerHour
	// window (Open Question decision, see DESIGN.md).
	hourWindowStart time.Time
	hourSpent       float64
}

// NewTracker creates a Tracker for cellID, allocated with initial budget.
func NewTracker(cellID string, allocated float64) *Tracker {
	return &Tracker{
		cellID:          cellID,
		allocated:       allocated,
		hourWindowStart: time.Now(),
		ledger:          []Entry{{Op: OpAllocate, Amount: allocated, At: time.Now()}},
	}
}

func (t *Tracker) available() float64 {
	return t.allocated - t.spent - t.delegated
}

// Balance returns a snapshot of the tracker's current state.
func (t *Tracker) Balance() Balance {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Balance{
		CellID:    t.cellID,
		Allocated: t.allocated,
		Spent:     t.spent,
		Delegated: t.delegated,
		Available: t.available(),
	}
}

// Remaining returns allocated - spent (the child-spawn reference point
// used by spawn_cell's default 10% allocation), not the full available()
// figure which also subtracts delegated.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocated - t.spent
}

// Deduct atomically records a spend of amount. Returns an error without
// mutating state if amount would drive available negative.
func (t *Tracker) Deduct(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("budget: deduct amount must be non-negative, got %f", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollHourWindowLocked()

	if amount > t.available() {
		return fmt.Errorf("budget: deduct %f exceeds available %f", amount, t.available())
	}
	t.spent += amount
	t.hourSpent += amount
	t.ledger = append(t.ledger, Entry{Op: OpSpend, Amount: amount, At: time.Now()})
	return nil
}

// HourSpent returns spend within the current tumbling hour window.
func (t *Tracker) HourSpent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollHourWindowLocked()
	return t.hourSpent
}

func (t *Tracker) rollHourWindowLocked() {
	if time.Since(t.hourWindowStart) >= time.Hour {
		t.hourWindowStart = time.Now()
		t.hourSpent = 0
	}
}

// Delegate reserves amount for a spawned child without marking it spent;
// it is reclaimed on the child's terminal state.
func (t *Tracker) Delegate(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("budget: delegate amount must be positive, got %f", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount > t.available() {
		return fmt.Errorf("budget: delegate %f exceeds available %f", amount, t.available())
	}
	t.delegated += amount
	t.ledger = append(t.ledger, Entry{Op: OpDelegate, Amount: amount, At: time.Now()})
	return nil
}

// Reclaim releases a previously delegated amount back to available, e.g.
// when a child Cell reaches a terminal state having spent less than its
// delegation.
func (t *Tracker) Reclaim(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("budget: reclaim amount must be non-negative, got %f", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount > t.delegated {
		amount = t.delegated // never let delegated go negative
	}
	t.delegated -= amount
	t.ledger = append(t.ledger, Entry{Op: OpReclaim, Amount: amount, At: time.Now()})
	return nil
}

// TopUp increases allocated, e.g. an operator raising a Cell's budget.
func (t *Tracker) TopUp(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("budget: top_up amount must be positive, got %f", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allocated += amount
	t.ledger = append(t.ledger, Entry{Op: OpTopUp, Amount: amount, At: time.Now()})
	return nil
}

// Ledger returns a copy of the recorded entries in order.
func (t *Tracker) Ledger() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.ledger))
	copy(out, t.ledger)
	return out
}

// Exceeded reports whether spend has crossed maxTotalCost or the current
// tumbling-hour window has crossed maxCostPerHour.
func (t *Tracker) Exceeded(maxTotalCost, maxCostPerHour *float64) (bool, string) {
	bal := t.Balance()
	if maxTotalCost != nil && bal.Spent >= *maxTotalCost {
		return true, fmt.Sprintf("total cost %.6f exceeds limit %.6f", bal.Spent, *maxTotalCost)
	}
	if maxCostPerHour != nil {
		if hs := t.HourSpent(); hs >= *maxCostPerHour {
			return true, fmt.Sprintf("hourly cost %.6f exceeds limit %.6f", hs, *maxCostPerHour)
		}
	}
	return false, ""
}
