/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWildcardGreaterThanMatchesTrailingTokens(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()

	var mu sync.Mutex
	var count int
	_, err := b.Subscribe(context.Background(), "cell.>", func(ctx context.Context, env *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, subject := range []string{"cell.default.coder.inbox", "cell.prod.reviewer.inbox"} {
		env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
		if err := b.Publish(context.Background(), subject, env); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitForCount(t, &mu, &count, 2)
}

func TestWildcardStarMatchesExactlyOneToken(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()

	var mu sync.Mutex
	var count int
	_, err := b.Subscribe(context.Background(), "cell.*.inbox", func(ctx context.Context, env *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
	// 4 tokens: cell.default.coder.inbox -- does not match 3-token pattern.
	if err := b.Publish(context.Background(), "cell.default.coder.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected zero matches for mismatched token count, got %d", count)
	}
}

func TestEachMatchingSubscriptionInvokedOncePerPublish(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()

	var mu sync.Mutex
	counts := map[int]int{}
	for i := 0; i < 3; i++ {
		idx := i
		_, err := b.Subscribe(context.Background(), "cell.default.*.inbox", func(ctx context.Context, env *Envelope) {
			mu.Lock()
			counts[idx]++
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
	if err := b.Publish(context.Background(), "cell.default.coder.inbox", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		allOne := len(counts) == 3
		for _, c := range counts {
			if c != 1 {
				allOne = false
			}
		}
		mu.Unlock()
		if allOne {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected every subscription invoked exactly once, got %v", counts)
}

func TestFullQueueLosesNoEnvelopes(t *testing.T) {
	// Queue depth 1 and a slow handler force the full-queue publish path:
	// every publish must still reach the handler exactly once.
	b := New(nil, 1)
	defer b.Drain()

	const total = 10
	var mu sync.Mutex
	seen := map[string]int{}
	_, err := b.Subscribe(context.Background(), "cell.>", func(ctx context.Context, env *Envelope) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen[env.ID]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
		ids = append(ids, env.ID)
		if err := b.Publish(context.Background(), "cell.default.coder.inbox", env); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(seen) == total
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("envelope %s delivered %d times, want exactly 1", id, seen[id])
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()

	var mu sync.Mutex
	var count int
	sub, err := b.Subscribe(context.Background(), "cell.>", func(ctx context.Context, env *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Unsubscribe(sub)

	env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
	_ = b.Publish(context.Background(), "cell.default.coder.inbox", env)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", count)
	}
}

func TestStatsTracksMessagesAndSubscriptions(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()

	sub, _ := b.Subscribe(context.Background(), "cell.>", func(ctx context.Context, env *Envelope) {})
	env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
	_ = b.Publish(context.Background(), "cell.default.coder.inbox", env)

	stats := b.Stats()
	if stats.MessagesPublished != 1 {
		t.Errorf("expected 1 published message, got %d", stats.MessagesPublished)
	}
	if stats.ActiveSubscriptions != 1 {
		t.Errorf("expected 1 active subscription, got %d", stats.ActiveSubscriptions)
	}
	b.Unsubscribe(sub)
	if b.Stats().ActiveSubscriptions != 0 {
		t.Errorf("expected 0 active subscriptions after unsubscribe")
	}
}

func TestPublishRejectsEmptySubjectToken(t *testing.T) {
	b := New(nil, 0)
	defer b.Drain()
	env, _ := NewEnvelope("x", "y", EnvelopeMessage, nil)
	if err := b.Publish(context.Background(), "cell..inbox", env); err == nil {
		t.Error("expected error for empty subject token")
	}
}

func waitForCount(t *testing.T, mu *sync.Mutex, count *int, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := *count
		mu.Unlock()
		if c == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected count %d, got %d", want, *count)
}
