/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/budget"
	"github.com/kais-io/cellmesh/internal/recursion"
)

// CellCreator creates a child Cell resource owned by the parent. The
// controller layer supplies a client.Client-backed implementation.
type CellCreator interface {
	CreateChildCell(ctx context.Context, namespace string, parent *cellmeshv1.Cell, child *cellmeshv1.Cell) error
}

// SpawnCellTool implements spawn_cell(name, spec_overrides?, budget?).
type SpawnCellTool struct {
	creator   CellCreator
	validator *recursion.Validator
	parent    *cellmeshv1.Cell
	namespace string
	tracker   *budget.Tracker
}

func NewSpawnCellTool(creator CellCreator, validator *recursion.Validator, tracker *budget.Tracker, namespace string, parent *cellmeshv1.Cell) *SpawnCellTool {
	return &SpawnCellTool{creator: creator, validator: validator, parent: parent, namespace: namespace, tracker: tracker}
}

func (t *SpawnCellTool) Name() string { return "spawn_cell" }
func (t *SpawnCellTool) Description() string {
	return "Spawn a child Cell, subject to recursion policy and budget delegation."
}
func (t *SpawnCellTool) InputSchema() string {
	return `{"type":"object","properties":{"name":{"type":"string"},"systemPrompt":{"type":"string"},"provider":{"type":"string"},"model":{"type":"string"},"budget":{"type":"number"},"canSpawnChildren":{"type":"boolean"}},"required":["name"]}`
}

func (t *SpawnCellTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Name             string   `json:"name"`
		SystemPrompt     string   `json:"systemPrompt"`
		Provider         string   `json:"provider"`
		Model            string   `json:"model"`
		Budget           *float64 `json:"budget"`
		CanSpawnChildren bool     `json:"canSpawnChildren"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Name == "" {
		return "", fmt.Errorf("spawn_cell: name is required")
	}

	var parentSpawnPolicy *cellmeshv1.RecursionSpec
	if t.parent.Spec.Recursion != nil {
		parentSpawnPolicy = t.parent.Spec.Recursion
	}

	decision, err := t.validator.Validate(ctx, t.namespace, t.parent.Name, parentSpawnPolicy)
	if err != nil {
		return "", fmt.Errorf("spawn_cell: %w", err)
	}
	if decision.Pending {
		out, _ := json.Marshal(map[string]string{"status": "pending_approval", "reason": decision.Reason})
		return string(out), nil
	}
	if !decision.Allowed {
		return "", fmt.Errorf("Spawn rejected: %s", decision.Reason)
	}

	remaining := t.tracker.Remaining()
	childBudget := remaining * 0.1
	if args.Budget != nil {
		childBudget = *args.Budget
	}
	if err := t.tracker.Delegate(childBudget); err != nil {
		return "", fmt.Errorf("Spawn rejected: %w", err)
	}

	childName := t.parent.Name + "-" + args.Name

	childSpec := cellmeshv1.CellSpec{
		Mind: cellmeshv1.MindSpec{
			Provider:     t.parent.Spec.Mind.Provider,
			Model:        t.parent.Spec.Mind.Model,
			SystemPrompt: t.parent.Spec.Mind.SystemPrompt,
		},
		Tools:     append([]string(nil), t.parent.Spec.Tools...),
		ParentRef: t.parent.Name,
	}
	if args.Provider != "" {
		childSpec.Mind.Provider = args.Provider
	}
	if args.Model != "" {
		childSpec.Mind.Model = args.Model
	}
	if args.SystemPrompt != "" {
		childSpec.Mind.SystemPrompt = args.SystemPrompt
	}
	maxTotalCost := fmt.Sprintf("%.6f", childBudget)
	childSpec.Budget = &cellmeshv1.BudgetSpec{MaxTotalCost: maxTotalCost}
	if args.CanSpawnChildren {
		// Inherit the parent's limits; a child never gets a looser policy
		// than the parent declared.
		rec := &cellmeshv1.RecursionSpec{MaxDepth: 3}
		if pr := t.parent.Spec.Recursion; pr != nil {
			if pr.MaxDepth > 0 {
				rec.MaxDepth = pr.MaxDepth
			}
			if pr.MaxDescendants != nil {
				v := *pr.MaxDescendants
				rec.MaxDescendants = &v
			}
			rec.SpawnPolicy = pr.SpawnPolicy
		}
		childSpec.Recursion = rec
	}

	child := &cellmeshv1.Cell{}
	child.Name = childName
	child.Namespace = t.namespace
	child.Spec = childSpec

	if err := t.creator.CreateChildCell(ctx, t.namespace, t.parent, child); err != nil {
		_ = t.tracker.Reclaim(childBudget)
		return "", fmt.Errorf("spawn_cell: create: %w", err)
	}

	out, _ := json.Marshal(map[string]any{
		"status":           "spawned",
		"name":             childName,
		"budget":           childBudget,
		"canSpawnChildren": args.CanSpawnChildren,
	})
	return string(out), nil
}
