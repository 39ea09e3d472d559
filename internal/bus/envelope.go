/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package bus implements the subject-based publish-subscribe message bus
// and its envelope type that carries agent traffic between
// Cells, Formations and the event consumer.
package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeType enumerates the kinds of payload an Envelope can carry.
type EnvelopeType string

const (
	EnvelopeMessage    EnvelopeType = "message"
	EnvelopeToolResult EnvelopeType = "tool_result"
	EnvelopeSystem     EnvelopeType = "system"
	EnvelopeControl    EnvelopeType = "control"
)

// Envelope is the addressed, typed message unit of the bus. It is
// schema-validated on construction: NewEnvelope is the only supported way
// to produce one with a guaranteed-unique id and a validated type.
type Envelope struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Type      EnvelopeType `json:"type"`
	Payload   any          `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
	TraceID   string       `json:"traceId,omitempty"`
	ReplyTo   string       `json:"replyTo,omitempty"`
}

// Option mutates an Envelope during construction.
type Option func(*Envelope)

// WithTraceID sets the envelope's traceId.
func WithTraceID(id string) Option {
	return func(e *Envelope) { e.TraceID = id }
}

// WithReplyTo sets the envelope's replyTo subject.
func WithReplyTo(subject string) Option {
	return func(e *Envelope) { e.ReplyTo = subject }
}

// NewEnvelope validates from/to/type and payload and returns a new Envelope
// with a freshly generated id and current timestamp. Two envelopes built
// back to back always carry distinct ids.
func NewEnvelope(from, to string, typ EnvelopeType, payload any, opts ...Option) (*Envelope, error) {
	if from == "" {
		return nil, fmt.Errorf("envelope: from must not be empty")
	}
	if to == "" {
		return nil, fmt.Errorf("envelope: to must not be empty")
	}
	switch typ {
	case EnvelopeMessage, EnvelopeToolResult, EnvelopeSystem, EnvelopeControl:
	default:
		return nil, fmt.Errorf("envelope: invalid type %q", typ)
	}

	e := &Envelope{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Validate re-checks an Envelope's invariants, e.g. after JSON decoding.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope: nil")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("envelope: invalid id %q: %w", e.ID, err)
	}
	if e.From == "" || e.To == "" {
		return fmt.Errorf("envelope: from/to must not be empty")
	}
	switch e.Type {
	case EnvelopeMessage, EnvelopeToolResult, EnvelopeSystem, EnvelopeControl:
	default:
		return fmt.Errorf("envelope: invalid type %q", e.Type)
	}
	return nil
}
