/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// CellTreeNode is the materialised Cell-parentage index backing
// recursion.TreeReader: it answers depth and descendant-count questions
// by walking spec.parentRef chains over the live Cell list.
type CellTreeNode struct {
	Client client.Client
}

// Depth returns the spawn depth of cellID, root cells at depth 0.
func (t *CellTreeNode) Depth(ctx context.Context, namespace, cellID string) (int, error) {
	byName, err := t.index(ctx, namespace)
	if err != nil {
		return 0, err
	}
	depth := 0
	current := cellID
	visited := map[string]bool{}
	for {
		cell, ok := byName[current]
		if !ok || cell.Spec.ParentRef == "" {
			return depth, nil
		}
		if visited[current] {
			return 0, fmt.Errorf("celltree: cycle detected at %q", current)
		}
		visited[current] = true
		current = cell.Spec.ParentRef
		depth++
		if depth > 1000 {
			return 0, fmt.Errorf("celltree: parent chain exceeds 1000 hops, likely cyclic")
		}
	}
}

// DescendantCount returns the number of live descendants of cellID.
func (t *CellTreeNode) DescendantCount(ctx context.Context, namespace, cellID string) (int, error) {
	byParent, err := t.childIndex(ctx, namespace)
	if err != nil {
		return 0, err
	}
	count := 0
	queue := []string{cellID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range byParent[parent] {
			count++
			queue = append(queue, child)
		}
	}
	return count, nil
}

func (t *CellTreeNode) index(ctx context.Context, namespace string) (map[string]cellmeshv1.Cell, error) {
	list := &cellmeshv1.CellList{}
	if err := t.Client.List(ctx, list, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("celltree: list cells: %w", err)
	}
	byName := make(map[string]cellmeshv1.Cell, len(list.Items))
	for _, c := range list.Items {
		byName[c.Name] = c
	}
	return byName, nil
}

func (t *CellTreeNode) childIndex(ctx context.Context, namespace string) (map[string][]string, error) {
	list := &cellmeshv1.CellList{}
	if err := t.Client.List(ctx, list, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("celltree: list cells: %w", err)
	}
	byParent := make(map[string][]string)
	for _, c := range list.Items {
		if c.Spec.ParentRef != "" {
			byParent[c.Spec.ParentRef] = append(byParent[c.Spec.ParentRef], c.Name)
		}
	}
	return byParent, nil
}
