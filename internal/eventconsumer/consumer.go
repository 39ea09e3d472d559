/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package eventconsumer bridges bus envelopes into the relational event
// store: it subscribes to every emitted Cell event and
// durably persists each one for later query.
package eventconsumer

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kais-io/cellmesh/internal/bus"
	"github.com/kais-io/cellmesh/internal/store"
)

// eventsSubject matches every published cell.events.* envelope
// regardless of namespace, cell name, or event type.
const eventsSubject = "cell.events.>"

// Consumer subscribes to the bus's event subjects and persists each
// envelope via an EventStore.
type Consumer struct {
	bus   *bus.Bus
	store store.EventStore
	log   *zap.Logger

	sub *bus.Subscription
}

// New constructs a Consumer wired to b and store.
func New(b *bus.Bus, s store.EventStore, log *zap.Logger) *Consumer {
	return &Consumer{bus: b, store: s, log: log}
}

// Start subscribes the consumer to cell.events.>.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.bus.Subscribe(ctx, eventsSubject, c.handle)
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

// Stop unsubscribes and drains in-flight work.
func (c *Consumer) Stop() {
	if c.sub != nil {
		c.bus.Unsubscribe(c.sub)
	}
}

// eventPayload is the decoded shape the consumer expects inside an
// envelope's payload: cellName and type are required; namespace
// defaults to "default" when absent.
type eventPayload struct {
	CellName  string `json:"cellName"`
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
}

// handle is the bus.Handler invoked for every matching envelope: decode,
// validate, insert. Exceptions are caught and logged without stopping the
// consumer; malformed or incomplete payloads are skipped with a warning.
func (c *Consumer) handle(ctx context.Context, env *bus.Envelope) {
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		c.warn("encode payload failed", err, env)
		return
	}

	var p eventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.warn("malformed event payload", err, env)
		return
	}
	if p.CellName == "" || p.Type == "" {
		c.warn("skipping event: missing cellName or type", nil, env)
		return
	}
	if p.Namespace == "" {
		p.Namespace = "default"
	}

	if err := c.store.InsertEvent(ctx, p.CellName, p.Namespace, p.Type, raw); err != nil {
		c.warn("insert failed", err, env)
		return
	}
}

func (c *Consumer) warn(msg string, err error, env *bus.Envelope) {
	if c.log == nil {
		return
	}
	fields := []zap.Field{zap.String("envelopeId", env.ID)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.log.Warn("eventconsumer: "+msg, fields...)
}
