/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

func TestMissionReconciler_PendingToRunning(t *testing.T) {
	scheme := newScheme(t)
	m := &cellmeshv1.Mission{
		ObjectMeta: metav1.ObjectMeta{Name: "m1", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec:       cellmeshv1.MissionSpec{Entrypoint: cellmeshv1.EntrypointRef{CellRef: "worker-0"}},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(m).WithStatusSubresource(m).Build()
	r := &MissionReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(m)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.Mission{}
	c.Get(ctx, client.ObjectKeyFromObject(m), got)
	if got.Status.Phase != cellmeshv1.MissionPhaseRunning {
		t.Fatalf("phase = %q, want Running", got.Status.Phase)
	}
}

func TestMissionReconciler_ToolOutputCompletesMission(t *testing.T) {
	scheme := newScheme(t)
	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default"},
		Status:     cellmeshv1.CellStatus{Message: "build succeeded: all tests green"},
	}
	m := &cellmeshv1.Mission{
		ObjectMeta: metav1.ObjectMeta{Name: "m1", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.MissionSpec{
			Entrypoint: cellmeshv1.EntrypointRef{CellRef: "worker-0"},
			CompletionChecks: []cellmeshv1.CompletionCheckSpec{
				{Type: cellmeshv1.CompletionCheckToolOutput, Name: "tests-pass", Pattern: "tests green"},
			},
		},
		Status: cellmeshv1.MissionStatus{Phase: cellmeshv1.MissionPhaseRunning},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(cell, m).WithStatusSubresource(m).Build()
	r := &MissionReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(m)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.Mission{}
	c.Get(ctx, client.ObjectKeyFromObject(m), got)
	if got.Status.Phase != cellmeshv1.MissionPhaseCompleted {
		t.Fatalf("phase = %q, want Completed", got.Status.Phase)
	}
	if len(got.Status.CheckResults) != 1 || !got.Status.CheckResults[0].Passed {
		t.Fatalf("unexpected check results: %+v", got.Status.CheckResults)
	}
}

func TestMissionReconciler_SignoffMovesToInReview(t *testing.T) {
	scheme := newScheme(t)
	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default"},
		Status:     cellmeshv1.CellStatus{Message: "done"},
	}
	m := &cellmeshv1.Mission{
		ObjectMeta: metav1.ObjectMeta{Name: "m1", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.MissionSpec{
			Entrypoint: cellmeshv1.EntrypointRef{CellRef: "worker-0"},
			CompletionChecks: []cellmeshv1.CompletionCheckSpec{
				{Type: cellmeshv1.CompletionCheckToolOutput, Name: "done-check", Pattern: "done", RequireSignoff: true},
			},
		},
		Status: cellmeshv1.MissionStatus{Phase: cellmeshv1.MissionPhaseRunning},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(cell, m).WithStatusSubresource(m).Build()
	r := &MissionReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(m)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.Mission{}
	c.Get(ctx, client.ObjectKeyFromObject(m), got)
	if got.Status.Phase != cellmeshv1.MissionPhaseInReview {
		t.Fatalf("phase = %q, want InReview", got.Status.Phase)
	}
}
