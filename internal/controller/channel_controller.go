/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"

	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// ChannelReconciler reconciles a Channel object: subscriberCount
// tracks len(spec.formations); phase is Error when fewer than two
// formations subscribe, Active at two or more. A channel whose status
// phase is Paused is left entirely alone: no status field is touched
// until something external moves the phase off Paused. spec.paused is
// the operator's lever for entering that state; leaving it is an
// explicit status patch.
type ChannelReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups=kais.io,resources=channels,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=kais.io,resources=channels/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=channels/finalizers,verbs=update

func (r *ChannelReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	channel := &cellmeshv1.Channel{}
	if err := r.Get(ctx, req.NamespacedName, channel); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !channel.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, channel)
	}

	if !controllerutil.ContainsFinalizer(channel, finalizerName) {
		controllerutil.AddFinalizer(channel, finalizerName)
		if err := r.Update(ctx, channel); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	// Currently Paused: skip updates. subscriberCount, messageCount and
	// the phase itself stay exactly as they were, whatever happens to
	// spec.formations underneath.
	if channel.Status.Phase == cellmeshv1.ChannelPhasePaused {
		return ctrl.Result{}, nil
	}

	if channel.Spec.Paused {
		channel.Status.Phase = cellmeshv1.ChannelPhasePaused
		return ctrl.Result{}, r.Status().Update(ctx, channel)
	}

	count := len(channel.Spec.Formations)
	channel.Status.SubscriberCount = count
	if count < 2 {
		channel.Status.Phase = cellmeshv1.ChannelPhaseError
		channel.Status.Message = "channel requires at least two subscribing formations"
	} else {
		channel.Status.Phase = cellmeshv1.ChannelPhaseActive
		channel.Status.Message = ""
	}
	return ctrl.Result{}, r.Status().Update(ctx, channel)
}

func (r *ChannelReconciler) handleDeletion(ctx context.Context, channel *cellmeshv1.Channel) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(channel, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(channel, finalizerName)
	if err := r.Update(ctx, channel); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *ChannelReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.Channel{}).
		Complete(r)
}
