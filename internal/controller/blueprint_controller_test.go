/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

func testBlueprint(formation string) *cellmeshv1.Blueprint {
	return &cellmeshv1.Blueprint{
		ObjectMeta: metav1.ObjectMeta{Name: "bp", Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.BlueprintSpec{
			Parameters: []cellmeshv1.ParameterSpec{
				{Name: "size", Type: cellmeshv1.ParamKindInteger},
			},
			Formation: runtime.RawExtension{Raw: []byte(formation)},
		},
	}
}

func TestBlueprintReconciler_FirstReconcileAppendsVersionOne(t *testing.T) {
	scheme := newScheme(t)
	bp := testBlueprint(`{"cells":[{"name":"w","replicas":"{{ size }}"}]}`)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(bp).WithStatusSubresource(bp).Build()
	r := &BlueprintReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(bp)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.Blueprint{}
	c.Get(ctx, client.ObjectKeyFromObject(bp), got)
	if len(got.Status.Versions) != 1 {
		t.Fatalf("versions = %d, want 1", len(got.Status.Versions))
	}
	if got.Status.Versions[0].Version != 1 {
		t.Fatalf("version = %d, want 1", got.Status.Versions[0].Version)
	}
	if got.Status.LastSpecHash == "" {
		t.Fatal("lastSpecHash not recorded")
	}
}

func TestBlueprintReconciler_UnchangedSpecDoesNotBump(t *testing.T) {
	scheme := newScheme(t)
	bp := testBlueprint(`{"cells":[]}`)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(bp).WithStatusSubresource(bp).Build()
	r := &BlueprintReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(bp)}

	for i := 0; i < 3; i++ {
		if _, err := r.Reconcile(ctx, req); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}
	got := &cellmeshv1.Blueprint{}
	c.Get(ctx, client.ObjectKeyFromObject(bp), got)
	if len(got.Status.Versions) != 1 {
		t.Fatalf("versions = %d, want 1 after repeated reconciles", len(got.Status.Versions))
	}
}

func TestBlueprintReconciler_SpecChangeBumpsByExactlyOne(t *testing.T) {
	scheme := newScheme(t)
	bp := testBlueprint(`{"cells":[]}`)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(bp).WithStatusSubresource(bp).Build()
	r := &BlueprintReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(bp)}

	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	got := &cellmeshv1.Blueprint{}
	c.Get(ctx, client.ObjectKeyFromObject(bp), got)
	got.Spec.Formation = runtime.RawExtension{Raw: []byte(`{"cells":[{"name":"w","replicas":"2"}]}`)}
	if err := c.Update(ctx, got); err != nil {
		t.Fatalf("update spec: %v", err)
	}
	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	c.Get(ctx, client.ObjectKeyFromObject(bp), got)
	if len(got.Status.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(got.Status.Versions))
	}
	if got.Status.Versions[1].Version != 2 {
		t.Fatalf("version = %d, want 2", got.Status.Versions[1].Version)
	}
}

func TestBlueprintReconciler_PreservesUsageStats(t *testing.T) {
	scheme := newScheme(t)
	bp := testBlueprint(`{"cells":[]}`)
	lastUsed := metav1.Now()
	bp.Status.UsageCount = 7
	bp.Status.LastUsed = &lastUsed
	bp.Status.AvgSuccessRate = "0.84"
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(bp).WithStatusSubresource(bp).Build()
	r := &BlueprintReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(bp)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.Blueprint{}
	c.Get(ctx, client.ObjectKeyFromObject(bp), got)
	if got.Status.UsageCount != 7 {
		t.Fatalf("usageCount = %d, want 7", got.Status.UsageCount)
	}
	if got.Status.AvgSuccessRate != "0.84" {
		t.Fatalf("avgSuccessRate = %q, want 0.84", got.Status.AvgSuccessRate)
	}
}
