/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := cellmeshv1.AddToScheme(scheme); err != nil {
		t.Fatalf("add cellmesh scheme: %v", err)
	}
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("add corev1 scheme: %v", err)
	}
	return scheme
}

func TestCellReconciler_CreatesPodOnFirstReconcile(t *testing.T) {
	scheme := newScheme(t)
	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default"},
		Spec: cellmeshv1.CellSpec{
			Mind: cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "you help"},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(cell).WithStatusSubresource(cell).Build()
	r := &CellReconciler{Client: c, Scheme: scheme, CellImage: "cellmesh/cell:latest"}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cell)})
	if err != nil {
		t.Fatalf("reconcile 1 (add finalizer): %v", err)
	}
	_, err = r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cell)})
	if err != nil {
		t.Fatalf("reconcile 2 (create pod): %v", err)
	}

	pod := &corev1.Pod{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "worker-0-agent"}, pod); err != nil {
		t.Fatalf("expected pod to be created: %v", err)
	}
	if pod.Annotations[cellFingerprintAnnotation] == "" {
		t.Fatal("expected fingerprint annotation to be set")
	}
}

func TestCellReconciler_PolicyViolationFailsCell(t *testing.T) {
	scheme := newScheme(t)
	policy := &cellmeshv1.CellPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "restrict", Namespace: "default"},
		Spec:       cellmeshv1.CellPolicySpec{AllowedProviders: []string{"ollama-*"}},
	}
	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.CellSpec{
			Mind: cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "you help"},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(policy, cell).WithStatusSubresource(cell).Build()
	r := &CellReconciler{Client: c, Scheme: scheme, CellImage: "cellmesh/cell:latest"}

	if _, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cell)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got := &cellmeshv1.Cell{}
	if err := c.Get(context.Background(), client.ObjectKeyFromObject(cell), got); err != nil {
		t.Fatalf("get cell: %v", err)
	}
	if got.Status.Phase != cellmeshv1.CellPhaseFailed {
		t.Fatalf("phase = %q, want Failed", got.Status.Phase)
	}
}

func TestCellReconciler_RebuildsPodOnSpecChange(t *testing.T) {
	scheme := newScheme(t)
	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.CellSpec{
			Mind: cellmeshv1.MindSpec{Provider: "anthropic", Model: "claude", SystemPrompt: "v1"},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(cell).WithStatusSubresource(cell).Build()
	r := &CellReconciler{Client: c, Scheme: scheme, CellImage: "cellmesh/cell:latest"}
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cell)}

	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("create pod: %v", err)
	}

	if err := c.Get(ctx, req.NamespacedName, cell); err != nil {
		t.Fatalf("get cell: %v", err)
	}
	cell.Spec.Mind.SystemPrompt = "v2"
	if err := c.Update(ctx, cell); err != nil {
		t.Fatalf("update cell: %v", err)
	}
	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("reconcile after change: %v", err)
	}

	pod := &corev1.Pod{}
	err := c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "worker-0-agent"}, pod)
	if err == nil {
		t.Fatal("expected stale pod to be deleted pending recreation")
	}
}
