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

// ClientCellCreator implements tools.CellCreator directly against the
// Kubernetes API, used by cmd/cell to back the spawn_cell tool from
// inside a running agent process.
type ClientCellCreator struct {
	Client client.Client
}

// CreateChildCell creates child, setting parent as its owner so it
// cascade-deletes with it.
func (c *ClientCellCreator) CreateChildCell(ctx context.Context, namespace string, parent, child *cellmeshv1.Cell) error {
	child.OwnerReferences = append(child.OwnerReferences, ownerReference(parent, cellGVK))

	if err := c.Client.Create(ctx, child); err != nil {
		return fmt.Errorf("controller: create child cell %s: %w", child.Name, err)
	}
	return nil
}

var cellGVK = cellmeshv1.GroupVersion.WithKind("Cell")
