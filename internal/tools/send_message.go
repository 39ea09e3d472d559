/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kais-io/cellmesh/internal/bus"
)

// Publisher is the subset of *bus.Bus the send_message tool needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, env *bus.Envelope) error
}

// TopologyEnforcer consults a Formation's routing table before a Cell may
// send to another named Cell.
type TopologyEnforcer interface {
	CanSendTo(from, to string) (allowed bool, allowedTargets []string)
}

// SendMessageTool implements send_message(to, message).
type SendMessageTool struct {
	bus       Publisher
	from      string
	namespace string
	topology  TopologyEnforcer // nil when no TopologyEnforcer is attached
}

// NewSendMessageTool constructs the tool for a Cell named from in
// namespace, publishing through b. topology may be nil.
func NewSendMessageTool(b Publisher, namespace, from string, topology TopologyEnforcer) *SendMessageTool {
	return &SendMessageTool{bus: b, from: from, namespace: namespace, topology: topology}
}

func (t *SendMessageTool) Name() string        { return "send_message" }
func (t *SendMessageTool) Description() string { return "Send a message to another Cell's inbox." }
func (t *SendMessageTool) InputSchema() string {
	return `{"type":"object","properties":{"to":{"type":"string"},"message":{"type":"string"}},"required":["to","message"]}`
}

func (t *SendMessageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	if t.topology != nil {
		if allowed, targets := t.topology.CanSendTo(t.from, args.To); !allowed {
			return "", fmt.Errorf("Topology violation: %s cannot send to %s. Allowed: %v", t.from, args.To, targets)
		}
	}

	env, err := bus.NewEnvelope(t.from, args.To, bus.EnvelopeMessage, map[string]string{"content": args.Message})
	if err != nil {
		return "", fmt.Errorf("send_message: %w", err)
	}
	subject := fmt.Sprintf("cell.%s.%s.inbox", t.namespace, args.To)
	if err := t.bus.Publish(ctx, subject, env); err != nil {
		return "", fmt.Errorf("send_message: publish: %w", err)
	}
	return fmt.Sprintf("sent to %s", args.To), nil
}
