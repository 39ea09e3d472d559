/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler processes one delivered Envelope. A handler panic is recovered
// and logged; it never reaches another subscriber or the publisher.
type Handler func(ctx context.Context, env *Envelope)

// Subscription is an opaque handle returned by Subscribe, passed back to
// Unsubscribe.
type Subscription struct {
	id      uint64
	pattern string
	tokens  []string
	queue   chan queuedEnvelope
	closing chan struct{}
	done    chan struct{}
}

type queuedEnvelope struct {
	ctx context.Context
	env *Envelope
}

// Bus is an in-process, subject-based publish-subscribe message bus.
// Subjects are non-empty dot-separated tokens; subscription patterns may
// use "*" (exactly one token) and a trailing ">" (one or more trailing
// tokens). Delivery is at-least-once and best-effort: every subscription
// whose pattern matches the published subject receives the envelope,
// handled on a private per-subscription queue so one slow subscriber
// never blocks another (no head-of-line blocking across subscribers).
type Bus struct {
	log *zap.Logger

	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	msgs    atomic.Int64
	queueSz int
}

// New constructs a Bus. queueSize bounds each subscription's private
// delivery queue; 0 selects a sensible default.
func New(log *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		log:     log,
		subs:    make(map[uint64]*Subscription),
		queueSz: queueSize,
	}
}

func splitSubject(subject string) ([]string, error) {
	if subject == "" {
		return nil, fmt.Errorf("bus: subject must not be empty")
	}
	tokens := strings.Split(subject, ".")
	for _, t := range tokens {
		if t == "" {
			return nil, fmt.Errorf("bus: subject %q has an empty token", subject)
		}
	}
	return tokens, nil
}

func splitPattern(pattern string) ([]string, error) {
	tokens, err := splitSubject(pattern)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid pattern: %w", err)
	}
	for i, t := range tokens {
		if t == ">" && i != len(tokens)-1 {
			return nil, fmt.Errorf("bus: pattern %q: '>' only valid as final token", pattern)
		}
	}
	return tokens, nil
}

// matches reports whether subject tokens satisfy the pattern tokens per
// the "*" (one token) / ">" (one or more trailing tokens) semantics.
func matches(patternTokens, subjectTokens []string) bool {
	for i, p := range patternTokens {
		if p == ">" {
			return i < len(subjectTokens)
		}
		if i >= len(subjectTokens) {
			return false
		}
		if p != "*" && p != subjectTokens[i] {
			return false
		}
	}
	return len(patternTokens) == len(subjectTokens)
}

// Subscribe registers handler against pattern and returns a Subscription
// handle. Each subscription gets its own worker goroutine draining a
// private queue, so handlers never block the publisher or each other.
func (b *Bus) Subscribe(ctx context.Context, pattern string, handler Handler) (*Subscription, error) {
	tokens, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus: closed")
	}
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		pattern: pattern,
		tokens:  tokens,
		queue:   make(chan queuedEnvelope, b.queueSz),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.drainSubscription(sub, handler)
	return sub, nil
}

func (b *Bus) drainSubscription(sub *Subscription, handler Handler) {
	defer close(sub.done)
	for {
		select {
		case qe := <-sub.queue:
			b.invoke(handler, qe)
		case <-sub.closing:
			// Unsubscribed: deliver what was already queued, then exit.
			for {
				select {
				case qe := <-sub.queue:
					b.invoke(handler, qe)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) invoke(handler Handler, qe queuedEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			if b.log != nil {
				b.log.Error("bus: subscriber handler panicked", zap.Any("recovered", r))
			}
		}
	}()
	handler(qe.ctx, qe.env)
}

// Unsubscribe removes sub from the bus. Already-queued envelopes for it
// are still delivered before its worker exits.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub.id)
	b.mu.Unlock()
	close(sub.closing)
	<-sub.done
}

// Publish delivers env to every subscription whose pattern matches
// subject. Every matching subscription receives every published envelope:
// a full subscriber queue backpressures the publisher rather than losing
// the envelope. Fast subscribers are served first with a non-blocking
// send, so one slow subscriber delays only itself and the publisher,
// never the other subscribers' delivery of this envelope. A blocked send
// returns early only when ctx is cancelled (the envelope is dropped and
// logged) or the subscription is concurrently unsubscribed.
func (b *Bus) Publish(ctx context.Context, subject string, env *Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("bus: refusing to publish invalid envelope: %w", err)
	}
	tokens, err := splitSubject(subject)
	if err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus: closed")
	}
	var matched []*Subscription
	for _, sub := range b.subs {
		if matches(sub.tokens, tokens) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	b.msgs.Add(1)
	qe := queuedEnvelope{ctx: ctx, env: env}

	var full []*Subscription
	for _, sub := range matched {
		select {
		case sub.queue <- qe:
		default:
			full = append(full, sub)
		}
	}
	for _, sub := range full {
		select {
		case sub.queue <- qe:
		case <-sub.closing:
			// Unsubscribed mid-publish; no handler left to invoke.
		case <-ctx.Done():
			if b.log != nil {
				b.log.Warn("bus: publish cancelled with subscriber queue full",
					zap.String("pattern", sub.pattern), zap.String("subject", subject))
			}
		}
	}
	return nil
}

// Drain unsubscribes every active subscription and waits for their
// workers to finish processing already-queued envelopes.
func (b *Bus) Drain() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		b.Unsubscribe(s)
	}
}

// Stats exposes message count and live subscription count for
// observability.
type Stats struct {
	MessagesPublished   int64
	ActiveSubscriptions int
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		MessagesPublished:   b.msgs.Load(),
		ActiveSubscriptions: len(b.subs),
	}
}
