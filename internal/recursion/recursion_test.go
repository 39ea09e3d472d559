/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package recursion

import (
	"context"
	"testing"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

type fakeTree struct {
	depth       int
	descendants int
}

func (f fakeTree) DescendantCount(ctx context.Context, namespace, cellID string) (int, error) {
	return f.descendants, nil
}

func (f fakeTree) Depth(ctx context.Context, namespace, cellID string) (int, error) {
	return f.depth, nil
}

func TestValidateNilSpecAllowsEverything(t *testing.T) {
	v := New(fakeTree{})
	d, err := v.Validate(context.Background(), "default", "parent", nil)
	if err != nil || !d.Allowed {
		t.Fatalf("expected allowed with nil spec, got %+v err=%v", d, err)
	}
}

func TestValidateClosedPolicyRejects(t *testing.T) {
	v := New(fakeTree{})
	spec := &cellmeshv1.RecursionSpec{SpawnPolicy: cellmeshv1.SpawnPolicyClosed}
	d, err := v.Validate(context.Background(), "default", "parent", spec)
	if err != nil || d.Allowed {
		t.Fatalf("expected rejection for closed policy, got %+v", d)
	}
}

func TestValidateRequireApprovalReturnsPending(t *testing.T) {
	v := New(fakeTree{depth: 0})
	spec := &cellmeshv1.RecursionSpec{SpawnPolicy: cellmeshv1.SpawnPolicyRequireApproval, MaxDepth: 3}
	d, err := v.Validate(context.Background(), "default", "parent", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || !d.Pending || d.Reason == "" {
		t.Fatalf("expected pending approval, got %+v", d)
	}
}

func TestValidateOpenPolicyRejectsOverDepth(t *testing.T) {
	v := New(fakeTree{depth: 3})
	spec := &cellmeshv1.RecursionSpec{SpawnPolicy: cellmeshv1.SpawnPolicyOpen, MaxDepth: 3}
	d, err := v.Validate(context.Background(), "default", "parent", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected rejection past max depth, got %+v", d)
	}
}

func TestValidateOpenPolicyRejectsOverDescendants(t *testing.T) {
	max := 2
	v := New(fakeTree{depth: 0, descendants: 2})
	spec := &cellmeshv1.RecursionSpec{SpawnPolicy: cellmeshv1.SpawnPolicyOpen, MaxDepth: 3, MaxDescendants: &max}
	d, err := v.Validate(context.Background(), "default", "parent", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected rejection over max descendants, got %+v", d)
	}
}

func TestValidateOpenPolicyAllowsWithinLimits(t *testing.T) {
	max := 5
	v := New(fakeTree{depth: 1, descendants: 1})
	spec := &cellmeshv1.RecursionSpec{SpawnPolicy: cellmeshv1.SpawnPolicyOpen, MaxDepth: 3, MaxDescendants: &max}
	d, err := v.Validate(context.Background(), "default", "parent", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
}
