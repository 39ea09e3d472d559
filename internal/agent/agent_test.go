/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kais-io/cellmesh/internal/budget"
	"github.com/kais-io/cellmesh/internal/bus"
	"github.com/kais-io/cellmesh/internal/memory"
	"github.com/kais-io/cellmesh/internal/mind"
	"github.com/kais-io/cellmesh/internal/retry"
	"github.com/kais-io/cellmesh/internal/tools"
)

// flakyMind fails transiently a fixed number of times before delegating
// to a StubMind, used to exercise the transient retry loop.
type flakyMind struct {
	failures int32
	inner    mind.Mind
}

func (f *flakyMind) Think(ctx context.Context, input mind.ThinkInput) (*mind.ThinkOutput, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, &mind.TransientError{Err: errors.New("rate limited")}
	}
	return f.inner.Think(ctx, input)
}

func newTestCell(t *testing.T, m mind.Mind) (*Cell, *bus.Bus) {
	t.Helper()
	b := bus.New(nil, 0)
	c := New(Config{
		Namespace:    "default",
		Name:         "researcher",
		SystemPrompt: "you are a researcher",
		Bus:          b,
		Mind:         m,
		Memory:       memory.New(memory.DefaultConfig()),
		Tools:        tools.NewRegistry(),
		Tracker:      budget.NewTracker("researcher", 1.0),
	})
	return c, b
}

func TestCellStartEmitsStartedEventWithCellNameAndType(t *testing.T) {
	c, b := newTestCell(t, mind.NewStubMind())
	defer b.Drain()

	var got *bus.Envelope
	_, err := b.Subscribe(context.Background(), "cell.events.default.researcher.started", func(ctx context.Context, env *bus.Envelope) {
		got = env
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return got != nil })

	payload, ok := got.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %#v", got.Payload)
	}
	if payload["cellName"] != "researcher" || payload["namespace"] != "default" || payload["type"] != "started" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if c.State() != StateRunning {
		t.Fatalf("expected Running, got %s", c.State())
	}
}

func TestInboxMessageDrivesThinkActLoopAndEmitsResponse(t *testing.T) {
	stub := mind.NewStubMind()
	c, b := newTestCell(t, stub)
	defer b.Drain()

	var resp *bus.Envelope
	_, _ = b.Subscribe(context.Background(), "cell.events.default.researcher.response", func(ctx context.Context, env *bus.Envelope) {
		resp = env
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, _ := bus.NewEnvelope("user", "researcher", bus.EnvelopeMessage, map[string]any{"content": "hello"})
	if err := b.Publish(context.Background(), "cell.default.researcher.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return resp != nil })

	payload := resp.Payload.(map[string]any)
	usage, ok := payload["usage"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested usage object, got %#v", payload)
	}
	if _, ok := usage["cost"]; !ok {
		t.Fatalf("expected usage.cost, got %#v", usage)
	}

	if len(c.cfg.Memory.Messages()) < 2 {
		t.Fatalf("expected memory to contain the user message and the assistant reply")
	}
}

func TestBudgetExceededEmitsBudgetExceededEvent(t *testing.T) {
	stub := &mind.StubMind{Response: mind.ThinkOutput{
		Content:    "working",
		StopReason: mind.StopReasonEndTurn,
		Usage:      mind.Usage{Cost: 2.0},
	}}
	c, b := newTestCell(t, stub)
	defer b.Drain()

	max := 1.0
	c.cfg.MaxTotalCost = &max

	var got *bus.Envelope
	_, _ = b.Subscribe(context.Background(), "cell.events.default.researcher.budget_exceeded", func(ctx context.Context, env *bus.Envelope) {
		got = env
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, _ := bus.NewEnvelope("user", "researcher", bus.EnvelopeMessage, map[string]any{"content": "go"})
	if err := b.Publish(context.Background(), "cell.default.researcher.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return got != nil })
}

func TestBudgetExceededTransitionsToFailedAndSignalsDone(t *testing.T) {
	stub := &mind.StubMind{Response: mind.ThinkOutput{
		Content:    "working",
		StopReason: mind.StopReasonEndTurn,
		Usage:      mind.Usage{Cost: 2.0},
	}}
	c, b := newTestCell(t, stub)
	defer b.Drain()

	max := 1.0
	c.cfg.MaxTotalCost = &max

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, _ := bus.NewEnvelope("user", "researcher", bus.EnvelopeMessage, map[string]any{"content": "go"})
	if err := b.Publish(context.Background(), "cell.default.researcher.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not signalled after budget violation")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s, want Failed", c.State())
	}
}

func TestTransientThinkErrorsAreRetriedUntilSuccess(t *testing.T) {
	stub := mind.NewStubMind()
	flaky := &flakyMind{failures: 2, inner: stub}
	c, b := newTestCell(t, flaky)
	c.cfg.RetryPolicy = retry.Policy{Base: time.Millisecond, Factor: 2, JitterFrac: 0, Cap: 10 * time.Millisecond, MaxAttempts: 5}
	defer b.Drain()

	var resp *bus.Envelope
	_, _ = b.Subscribe(context.Background(), "cell.events.default.researcher.response", func(ctx context.Context, env *bus.Envelope) {
		resp = env
	})
	var errEvt *bus.Envelope
	_, _ = b.Subscribe(context.Background(), "cell.events.default.researcher.error", func(ctx context.Context, env *bus.Envelope) {
		errEvt = env
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, _ := bus.NewEnvelope("user", "researcher", bus.EnvelopeMessage, map[string]any{"content": "hello"})
	if err := b.Publish(context.Background(), "cell.default.researcher.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return resp != nil })
	if errEvt != nil {
		t.Fatalf("expected no error event once retries succeed, got %#v", errEvt.Payload)
	}
}

func TestNonTransientThinkErrorAbortsWithoutRetry(t *testing.T) {
	stub := &mind.StubMind{Err: errors.New("bad request")}
	c, b := newTestCell(t, stub)
	defer b.Drain()

	var errEvt *bus.Envelope
	_, _ = b.Subscribe(context.Background(), "cell.events.default.researcher.error", func(ctx context.Context, env *bus.Envelope) {
		errEvt = env
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	env, _ := bus.NewEnvelope("user", "researcher", bus.EnvelopeMessage, map[string]any{"content": "hello"})
	if err := b.Publish(context.Background(), "cell.default.researcher.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return errEvt != nil })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
