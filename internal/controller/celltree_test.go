/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

func TestCellTreeNode_DepthAndDescendants(t *testing.T) {
	scheme := newScheme(t)
	root := &cellmeshv1.Cell{ObjectMeta: metav1.ObjectMeta{Name: "root", Namespace: "default"}}
	child := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "root-child", Namespace: "default"},
		Spec:       cellmeshv1.CellSpec{ParentRef: "root"},
	}
	grandchild := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "root-child-gc", Namespace: "default"},
		Spec:       cellmeshv1.CellSpec{ParentRef: "root-child"},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(root, child, grandchild).Build()
	tree := &CellTreeNode{Client: c}
	ctx := context.Background()

	depth, err := tree.Depth(ctx, "default", "root-child-gc")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}

	count, err := tree.DescendantCount(ctx, "default", "root")
	if err != nil {
		t.Fatalf("descendant count: %v", err)
	}
	if count != 2 {
		t.Fatalf("descendant count = %d, want 2", count)
	}
}
