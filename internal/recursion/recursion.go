/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package recursion enforces spawn depth, descendant count and spawn
// policy for Cell trees, and validates spawn_cell requests.
package recursion

import (
	"context"
	"fmt"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// TreeReader answers the descendant-count question a Validator needs;
// the CellController's CellTreeNode index implements it.
type TreeReader interface {
	// DescendantCount returns the number of live descendants of cellID.
	DescendantCount(ctx context.Context, namespace, cellID string) (int, error)
	// Depth returns the spawn depth of cellID (root = 0).
	Depth(ctx context.Context, namespace, cellID string) (int, error)
}

// Decision is the validator's answer to a spawn request.
type Decision struct {
	Allowed bool
	Pending bool
	Reason  string
}

// Validator enforces the recursive-spawn rules: depth and descendant
// limits plus the declared spawn policy.
type Validator struct {
	tree TreeReader
}

// New constructs a Validator backed by tree.
func New(tree TreeReader) *Validator {
	return &Validator{tree: tree}
}

// Validate decides whether parentCellID in namespace may spawn a child,
// given the parent's own RecursionSpec.
func (v *Validator) Validate(ctx context.Context, namespace, parentCellID string, spec *cellmeshv1.RecursionSpec) (Decision, error) {
	if spec == nil {
		return Decision{Allowed: true}, nil
	}

	switch spec.SpawnPolicy {
	case cellmeshv1.SpawnPolicyClosed, "":
		return Decision{Allowed: false, Reason: "spawn policy is closed"}, nil
	case cellmeshv1.SpawnPolicyRequireApproval:
		if err := v.checkLimits(ctx, namespace, parentCellID, spec); err != nil {
			return Decision{Allowed: false, Reason: err.Error()}, nil
		}
		return Decision{Allowed: false, Pending: true, Reason: "awaiting admin"}, nil
	case cellmeshv1.SpawnPolicyOpen:
		if err := v.checkLimits(ctx, namespace, parentCellID, spec); err != nil {
			return Decision{Allowed: false, Reason: err.Error()}, nil
		}
		return Decision{Allowed: true}, nil
	default:
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown spawn policy %q", spec.SpawnPolicy)}, nil
	}
}

func (v *Validator) checkLimits(ctx context.Context, namespace, parentCellID string, spec *cellmeshv1.RecursionSpec) error {
	maxDepth := spec.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	depth, err := v.tree.Depth(ctx, namespace, parentCellID)
	if err != nil {
		return fmt.Errorf("recursion: depth lookup: %w", err)
	}
	if depth+1 > maxDepth {
		return fmt.Errorf("max spawn depth %d exceeded", maxDepth)
	}

	if spec.MaxDescendants != nil {
		count, err := v.tree.DescendantCount(ctx, namespace, parentCellID)
		if err != nil {
			return fmt.Errorf("recursion: descendant count: %w", err)
		}
		if count+1 > *spec.MaxDescendants {
			return fmt.Errorf("max descendant count %d exceeded", *spec.MaxDescendants)
		}
	}
	return nil
}
