/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package agent implements the Cell think/act runtime: lifecycle
// management over the message bus and the per-inbox-message reasoning
// loop that drives a Mind through tool calls to completion.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kais-io/cellmesh/internal/assembler"
	"github.com/kais-io/cellmesh/internal/budget"
	"github.com/kais-io/cellmesh/internal/bus"
	"github.com/kais-io/cellmesh/internal/memory"
	"github.com/kais-io/cellmesh/internal/metrics"
	"github.com/kais-io/cellmesh/internal/mind"
	"github.com/kais-io/cellmesh/internal/retry"
	"github.com/kais-io/cellmesh/internal/tools"
)

// State is a Cell's runtime lifecycle state.
type State string

const (
	StateCreated  State = "Created"
	StateStarting State = "Starting"
	StateRunning  State = "Running"
	StateStopping State = "Stopping"
	StateStopped  State = "Stopped"
	StateFailed   State = "Failed"
)

// Config wires everything one Cell's loop needs.
type Config struct {
	Namespace    string
	Name         string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int

	Bus     *bus.Bus
	Mind    mind.Mind
	Memory  *memory.Memory
	Tools   *tools.Registry
	Tracker *budget.Tracker

	MaxTotalCost   *float64
	MaxCostPerHour *float64

	// RetryPolicy governs retries of transient Mind.Think errors.
	// Zero value (no fields set) is replaced with retry.DefaultPolicy.
	RetryPolicy retry.Policy

	Log *zap.Logger
}

// Cell runs one agent's lifecycle and think/act loop.
type Cell struct {
	cfg Config

	mu       sync.Mutex
	state    State
	sub      *bus.Subscription
	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg Config) *Cell {
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy
	}
	return &Cell{cfg: cfg, state: StateCreated, done: make(chan struct{})}
}

func (c *Cell) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the Cell reaches a terminal state (Failed) on its
// own, e.g. on a budget violation. The host process selects on it
// alongside signal cancellation and exits with a fatal code, so the
// backing Pod's phase reflects the failure.
func (c *Cell) Done() <-chan struct{} {
	return c.done
}

func (c *Cell) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Cell) inboxSubject() string {
	return fmt.Sprintf("cell.%s.%s.inbox", c.cfg.Namespace, c.cfg.Name)
}

func (c *Cell) eventSubject(kind string) string {
	return fmt.Sprintf("cell.events.%s.%s.%s", c.cfg.Namespace, c.cfg.Name, kind)
}

// Start subscribes to the Cell's inbox and emits a started event. The
// think/act loop runs per delivered message, handled on the bus's own
// per-subscription goroutine.
func (c *Cell) Start(ctx context.Context) error {
	c.setState(StateStarting)

	sub, err := c.cfg.Bus.Subscribe(ctx, c.inboxSubject(), c.handleInbox)
	if err != nil {
		c.setState(StateStopped)
		return fmt.Errorf("agent: subscribe: %w", err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.emitEvent(ctx, "started", nil)
	metrics.EmitSpanEvent(ctx, "cell.agent.started", metrics.CellEventAttrs(c.cfg.Namespace, c.cfg.Name, string(StateRunning))...)
	c.setState(StateRunning)
	return nil
}

// Stop unsubscribes, drains in-flight handling, and emits a stopped event.
func (c *Cell) Stop(ctx context.Context) {
	c.setState(StateStopping)
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		c.cfg.Bus.Unsubscribe(sub)
	}
	c.emitEvent(ctx, "stopped", nil)
	metrics.EmitSpanEvent(ctx, "cell.agent.stopped", metrics.CellEventAttrs(c.cfg.Namespace, c.cfg.Name, string(StateStopped))...)
	c.setState(StateStopped)
}

// emitEvent builds the event payload the Event Consumer
// expects: cellName/namespace/type at the top level (required for the
// cell_events insert) plus whatever extra fields the event kind carries.
func (c *Cell) emitEvent(ctx context.Context, kind string, extra map[string]any) {
	payload := map[string]any{
		"type":      kind,
		"cellName":  c.cfg.Name,
		"namespace": c.cfg.Namespace,
	}
	for k, v := range extra {
		payload[k] = v
	}
	env, err := bus.NewEnvelope(c.cfg.Name, "events", bus.EnvelopeSystem, payload)
	if err != nil {
		return
	}
	_ = c.cfg.Bus.Publish(ctx, c.eventSubject(kind), env)
}

// handleInbox is the bus Handler for the Cell's inbox subscription: one
// received envelope seeds one think/act loop run.
func (c *Cell) handleInbox(ctx context.Context, env *bus.Envelope) {
	role := mind.RoleUser
	content := fmt.Sprintf("%v", env.Payload)
	if env.Type == bus.EnvelopeToolResult {
		role = mind.RoleTool
	}
	c.cfg.Memory.Append(mind.Message{Role: role, Content: content})
	c.runLoop(ctx)
}

// runLoop drives the think/act cycle until the Mind stops on end_turn
// (awaiting the next inbox message) or the Cell transitions to Failed on
// a budget violation.
func (c *Cell) runLoop(ctx context.Context) {
	for {
		if err := c.cfg.Memory.MaybeSummarize(ctx, c.summarize); err != nil {
			c.logError("summarize failed", err)
			// Fail open: an unsummarised log is still a usable log.
		}

		in := assembler.Input{
			SystemPrompt:  c.cfg.SystemPrompt,
			WorkingMemory: c.cfg.Memory.Messages(),
		}
		messages := assembler.Assemble(in)
		// The prompt hash and tool-call log lines below are consumed by
		// the Cell controller's stuck detection, which scores repetition
		// and tool diversity from the pod's log stream.
		if c.cfg.Log != nil {
			c.cfg.Log.Info("prompt hash", zap.String("hash", promptHash(messages)))
		}

		var out *mind.ThinkOutput
		err := retry.Do(ctx, c.cfg.RetryPolicy, mind.IsTransient, func() error {
			var thinkErr error
			out, thinkErr = c.cfg.Mind.Think(ctx, mind.ThinkInput{
				Messages:    messages,
				Tools:       c.cfg.Tools.GetDefinitions(),
				Temperature: c.cfg.Temperature,
				MaxTokens:   c.cfg.MaxTokens,
			})
			return thinkErr
		})
		if err != nil {
			c.logError("think failed", err)
			c.emitEvent(ctx, "error", map[string]any{"message": err.Error()})
			return
		}

		if err := c.cfg.Tracker.Deduct(out.Usage.Cost); err != nil {
			c.logError("budget deduct failed", err)
			c.emitEvent(ctx, "budget_exceeded", map[string]any{"reason": err.Error()})
			metrics.BudgetExceededTotal.WithLabelValues(c.cfg.Namespace).Inc()
			c.fail(ctx, err.Error())
			return
		}
		if exceeded, reason := c.cfg.Tracker.Exceeded(c.cfg.MaxTotalCost, c.cfg.MaxCostPerHour); exceeded {
			c.emitEvent(ctx, "budget_exceeded", map[string]any{"reason": reason})
			metrics.BudgetExceededTotal.WithLabelValues(c.cfg.Namespace).Inc()
			c.fail(ctx, reason)
			return
		}

		c.cfg.Memory.Append(mind.Message{
			Role:      mind.RoleAssistant,
			Content:   out.Content,
			ToolCalls: out.ToolCalls,
		})
		c.emitEvent(ctx, "response", map[string]any{
			"content": out.Content,
			"usage": map[string]any{
				"cost":         out.Usage.Cost,
				"inputTokens":  out.Usage.InputTokens,
				"outputTokens": out.Usage.OutputTokens,
				"totalTokens":  out.Usage.InputTokens + out.Usage.OutputTokens,
			},
		})

		if len(out.ToolCalls) == 0 || out.StopReason == mind.StopReasonEndTurn {
			return
		}

		for _, call := range out.ToolCalls {
			if c.cfg.Log != nil {
				c.cfg.Log.Info("tool call", zap.String("tool", call.Name))
			}
			result := c.cfg.Tools.Execute(ctx, call)
			c.cfg.Memory.Append(mind.Message{
				Role:       mind.RoleTool,
				Content:    result.Content,
				ToolCallID: result.CallID,
				ToolName:   result.Name,
			})
			c.emitEvent(ctx, "tool_result", map[string]any{
				"tool":    result.Name,
				"content": result.Content,
				"isError": result.IsError,
			})
		}
		// Loop again without waiting for a new inbox message.
	}
}

// fail moves the Cell to Failed: unsubscribe so no further inbox
// messages are consumed, then signal Done so the host process can exit
// with a fatal code and take the Pod down with it.
func (c *Cell) fail(ctx context.Context, reason string) {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		// fail runs on the subscription's own delivery goroutine;
		// Unsubscribe waits for that goroutine, so it must not be
		// called synchronously from here.
		go c.cfg.Bus.Unsubscribe(sub)
	}
	metrics.EmitSpanEvent(ctx, "cell.agent.failed", metrics.CellEventAttrs(c.cfg.Namespace, c.cfg.Name, string(StateFailed))...)
	if c.cfg.Log != nil {
		c.cfg.Log.Error("agent: failed", zap.String("cell", c.cfg.Name), zap.String("reason", reason))
	}
	c.setState(StateFailed)
	c.doneOnce.Do(func() { close(c.done) })
}

// summarize is the memory.Summarizer backing MaybeSummarize: it asks the
// Cell's own Mind to collapse the older span of the conversation into a
// single compact summary.
func (c *Cell) summarize(ctx context.Context, messages []mind.Message) (string, error) {
	prompt := []mind.Message{{
		Role:    mind.RoleSystem,
		Content: "Summarize the following conversation so it can replace the original messages. Preserve decisions, open tasks, and tool outcomes.",
	}}
	prompt = append(prompt, messages...)
	out, err := c.cfg.Mind.Think(ctx, mind.ThinkInput{Messages: prompt})
	if err != nil {
		return "", err
	}
	if err := c.cfg.Tracker.Deduct(out.Usage.Cost); err != nil {
		c.logError("budget deduct failed", err)
	}
	return out.Content, nil
}

func (c *Cell) logError(msg string, err error) {
	if c.cfg.Log != nil {
		c.cfg.Log.Error("agent: "+msg, zap.Error(err), zap.String("cell", c.cfg.Name))
	}
}

// promptHash fingerprints an assembled prompt. The same hash appearing
// repeatedly in the log stream means the loop is going in circles.
func promptHash(messages []mind.Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
