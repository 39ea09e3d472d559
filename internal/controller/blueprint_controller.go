/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/metrics"
)

// BlueprintReconciler reconciles a Blueprint object: it appends a
// new BlueprintVersion entry whenever the spec's content hash changes,
// monotonically increasing status.versions[].version while leaving
// usageCount, lastUsed and avgSuccessRate untouched (those are updated by
// whatever materialises a Formation from this Blueprint, not by this
// reconciler).
type BlueprintReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups=kais.io,resources=blueprints,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=blueprints/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=blueprints/finalizers,verbs=update

func (r *BlueprintReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	bp := &cellmeshv1.Blueprint{}
	if err := r.Get(ctx, req.NamespacedName, bp); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !bp.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, bp)
	}

	if !controllerutil.ContainsFinalizer(bp, finalizerName) {
		controllerutil.AddFinalizer(bp, finalizerName)
		if err := r.Update(ctx, bp); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	hash, err := specFingerprint(bp.Spec)
	if err != nil {
		return ctrl.Result{}, err
	}
	if hash == bp.Status.LastSpecHash {
		return ctrl.Result{}, nil
	}

	nextVersion := 1
	if n := len(bp.Status.Versions); n > 0 {
		nextVersion = bp.Status.Versions[n-1].Version + 1
	}

	bp.Status.Versions = append(bp.Status.Versions, cellmeshv1.BlueprintVersion{
		Version:   nextVersion,
		CreatedAt: metav1.Now(),
	})
	bp.Status.LastSpecHash = hash
	metrics.BlueprintVersionsTotal.WithLabelValues(bp.Name, bp.Namespace).Inc()

	return ctrl.Result{}, r.Status().Update(ctx, bp)
}

func (r *BlueprintReconciler) handleDeletion(ctx context.Context, bp *cellmeshv1.Blueprint) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(bp, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(bp, finalizerName)
	if err := r.Update(ctx, bp); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *BlueprintReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.Blueprint{}).
		Complete(r)
}
