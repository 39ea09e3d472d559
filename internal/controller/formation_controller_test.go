/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"encoding/json"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/topology"
)

func TestFormationReconciler_ExpandsCellsAndGeneratesTopology(t *testing.T) {
	scheme := newScheme(t)
	mind := cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "help"}
	formation := &cellmeshv1.Formation{
		ObjectMeta: metav1.ObjectMeta{Name: "team", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.FormationSpec{
			Cells: []cellmeshv1.CellDecl{
				{Name: "worker", Replicas: 2, Spec: cellmeshv1.CellSpec{Mind: mind}},
			},
			Topology: cellmeshv1.TopologySpec{Kind: cellmeshv1.TopologyFullMesh},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(formation).WithStatusSubresource(formation).Build()
	r := &FormationReconciler{Client: c, Scheme: scheme}

	ctx := context.Background()
	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(formation)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, name := range []string{"worker-0", "worker-1"} {
		cell := &cellmeshv1.Cell{}
		if err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: name}, cell); err != nil {
			t.Fatalf("expected cell %s to exist: %v", name, err)
		}
	}

	cm := &corev1.ConfigMap{}
	if err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "team-topology"}, cm); err != nil {
		t.Fatalf("expected topology configmap: %v", err)
	}
	var route topology.RouteTable
	if err := json.Unmarshal([]byte(cm.Data["routeTable.json"]), &route); err != nil {
		t.Fatalf("decode route table: %v", err)
	}
	if len(route["worker-0"]) != 1 || route["worker-0"][0] != "worker-1" {
		t.Fatalf("unexpected route table: %+v", route)
	}

	got := &cellmeshv1.Formation{}
	c.Get(ctx, client.ObjectKeyFromObject(formation), got)
	if got.Status.Phase != cellmeshv1.FormationPhaseRunning {
		t.Fatalf("phase = %q, want Running", got.Status.Phase)
	}
	if got.Status.TotalCells != 2 {
		t.Fatalf("totalCells = %d, want 2", got.Status.TotalCells)
	}
}

func TestFormationReconciler_ReplicaScaleUpThenDown(t *testing.T) {
	scheme := newScheme(t)
	mind := cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "help"}
	formation := &cellmeshv1.Formation{
		ObjectMeta: metav1.ObjectMeta{Name: "team", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.FormationSpec{
			Cells:    []cellmeshv1.CellDecl{{Name: "worker", Replicas: 1, Spec: cellmeshv1.CellSpec{Mind: mind}}},
			Topology: cellmeshv1.TopologySpec{Kind: cellmeshv1.TopologyFullMesh},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(formation).WithStatusSubresource(formation).Build()
	r := &FormationReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(formation)}

	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("initial reconcile: %v", err)
	}

	got := &cellmeshv1.Formation{}
	c.Get(ctx, client.ObjectKeyFromObject(formation), got)
	got.Spec.Cells[0].Replicas = 3
	if err := c.Update(ctx, got); err != nil {
		t.Fatalf("scale up: %v", err)
	}
	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("scale-up reconcile: %v", err)
	}
	for _, name := range []string{"worker-0", "worker-1", "worker-2"} {
		if err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: name}, &cellmeshv1.Cell{}); err != nil {
			t.Fatalf("expected cell %s after scale up: %v", name, err)
		}
	}

	c.Get(ctx, client.ObjectKeyFromObject(formation), got)
	got.Spec.Cells[0].Replicas = 1
	if err := c.Update(ctx, got); err != nil {
		t.Fatalf("scale down: %v", err)
	}
	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("scale-down reconcile: %v", err)
	}
	if err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "worker-0"}, &cellmeshv1.Cell{}); err != nil {
		t.Fatalf("worker-0 should survive scale down: %v", err)
	}
	for _, name := range []string{"worker-1", "worker-2"} {
		if err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: name}, &cellmeshv1.Cell{}); err == nil {
			t.Fatalf("expected surplus cell %s to be deleted", name)
		}
	}
}

func TestFormationReconciler_ScalesDownRemovedDecl(t *testing.T) {
	scheme := newScheme(t)
	mind := cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "help"}
	formation := &cellmeshv1.Formation{
		ObjectMeta: metav1.ObjectMeta{Name: "team", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.FormationSpec{
			Cells:    []cellmeshv1.CellDecl{{Name: "worker", Replicas: 1, Spec: cellmeshv1.CellSpec{Mind: mind}}},
			Topology: cellmeshv1.TopologySpec{Kind: cellmeshv1.TopologyFullMesh},
		},
	}
	stale := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{
			Name: "worker-5", Namespace: "default",
			Labels: map[string]string{"cellmesh.kais.io/formation": "team"},
		},
		Spec: cellmeshv1.CellSpec{Mind: mind},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(formation, stale).WithStatusSubresource(formation).Build()
	r := &FormationReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(formation)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "worker-5"}, &cellmeshv1.Cell{})
	if err == nil {
		t.Fatal("expected stale cell worker-5 to be deleted")
	}
}
