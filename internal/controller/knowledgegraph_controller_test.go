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
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

func testKnowledgeGraph(name, parentRef string, dedicated bool) *cellmeshv1.KnowledgeGraph {
	return &cellmeshv1.KnowledgeGraph{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Finalizers: []string{finalizerName}},
		Spec: cellmeshv1.KnowledgeGraphSpec{
			Scope:     cellmeshv1.KnowledgeScope{Level: cellmeshv1.ScopeLevelFormation, ID: name},
			Dedicated: dedicated,
			ParentRef: parentRef,
		},
	}
}

func TestKnowledgeGraphReconciler_SharedBecomesReady(t *testing.T) {
	scheme := newScheme(t)
	kg := testKnowledgeGraph("team-kg", "", false)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(kg).WithStatusSubresource(kg).Build()
	r := &KnowledgeGraphReconciler{Client: c, Scheme: scheme, Neo4jImage: "neo4j:5"}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(kg)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.KnowledgeGraph{}
	c.Get(ctx, client.ObjectKeyFromObject(kg), got)
	if got.Status.Phase != cellmeshv1.KnowledgeGraphPhaseReady {
		t.Fatalf("phase = %q, want Ready", got.Status.Phase)
	}
	if got.Status.Database != "team-kg" {
		t.Fatalf("database = %q, want the graph's own name", got.Status.Database)
	}
	if got.Status.Endpoint != "" {
		t.Fatalf("endpoint = %q, want empty for a shared graph", got.Status.Endpoint)
	}

	// No backing pod is created for a shared graph.
	pod := &corev1.Pod{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "default", Name: "neo4j-team-kg"}, pod); err == nil {
		t.Fatal("shared graph unexpectedly created a backing pod")
	}
}

func TestKnowledgeGraphReconciler_DedicatedCreatesPodAndService(t *testing.T) {
	scheme := newScheme(t)
	kg := testKnowledgeGraph("team-kg", "", true)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(kg).WithStatusSubresource(kg).Build()
	r := &KnowledgeGraphReconciler{Client: c, Scheme: scheme, Neo4jImage: "neo4j:5"}
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(kg)}

	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	pod := &corev1.Pod{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "default", Name: "neo4j-team-kg"}, pod); err != nil {
		t.Fatalf("backing pod: %v", err)
	}
	if pod.Spec.Containers[0].Image != "neo4j:5" {
		t.Fatalf("image = %q, want neo4j:5", pod.Spec.Containers[0].Image)
	}
	if len(pod.OwnerReferences) != 1 || !*pod.OwnerReferences[0].Controller {
		t.Fatal("backing pod missing controller owner reference")
	}

	svc := &corev1.Service{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "default", Name: "neo4j-team-kg"}, svc); err != nil {
		t.Fatalf("backing service: %v", err)
	}

	// The pod exists but isn't running yet: the graph must not report
	// Ready until the service actually has something addressable behind it.
	got := &cellmeshv1.KnowledgeGraph{}
	c.Get(ctx, client.ObjectKeyFromObject(kg), got)
	if got.Status.Phase != cellmeshv1.KnowledgeGraphPhasePending {
		t.Fatalf("phase = %q, want Pending before the pod is ready", got.Status.Phase)
	}

	pod.Status.Phase = corev1.PodRunning
	pod.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
	if err := c.Status().Update(ctx, pod); err != nil {
		t.Fatalf("update pod status: %v", err)
	}
	if _, err := r.Reconcile(ctx, req); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	c.Get(ctx, client.ObjectKeyFromObject(kg), got)
	if got.Status.Phase != cellmeshv1.KnowledgeGraphPhaseReady {
		t.Fatalf("phase = %q, want Ready once the pod is ready", got.Status.Phase)
	}
	if got.Status.Endpoint != "neo4j-team-kg.default.svc:7687" {
		t.Fatalf("endpoint = %q", got.Status.Endpoint)
	}
}

func TestKnowledgeGraphReconciler_ParentChainResolution(t *testing.T) {
	scheme := newScheme(t)
	root := testKnowledgeGraph("platform-kg", "", false)
	mid := testKnowledgeGraph("realm-kg", "platform-kg", false)
	leaf := testKnowledgeGraph("team-kg", "realm-kg", false)
	c := fake.NewClientBuilder().WithScheme(scheme).
		WithObjects(root, mid, leaf).
		WithStatusSubresource(root, mid, leaf).Build()
	r := &KnowledgeGraphReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(leaf)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.KnowledgeGraph{}
	c.Get(ctx, client.ObjectKeyFromObject(leaf), got)
	if len(got.Status.ParentChain) != 2 {
		t.Fatalf("parentChain = %v, want [realm-kg platform-kg]", got.Status.ParentChain)
	}
	if got.Status.ParentChain[0] != "realm-kg" || got.Status.ParentChain[1] != "platform-kg" {
		t.Fatalf("parentChain = %v, want nearest ancestor first", got.Status.ParentChain)
	}
}

func TestKnowledgeGraphReconciler_MissingParentFails(t *testing.T) {
	scheme := newScheme(t)
	kg := testKnowledgeGraph("team-kg", "no-such-kg", false)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(kg).WithStatusSubresource(kg).Build()
	r := &KnowledgeGraphReconciler{Client: c, Scheme: scheme}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: client.ObjectKeyFromObject(kg)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := &cellmeshv1.KnowledgeGraph{}
	c.Get(ctx, client.ObjectKeyFromObject(kg), got)
	if got.Status.Phase != cellmeshv1.KnowledgeGraphPhaseFailed {
		t.Fatalf("phase = %q, want Failed", got.Status.Phase)
	}
	if got.Status.Message == "" {
		t.Fatal("expected a failure message naming the missing parent")
	}
}
