/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/metrics"
	"github.com/kais-io/cellmesh/internal/topology"
)

// FormationReconciler reconciles a Formation object: it expands
// each CellDecl x Replicas into concrete Cell resources and regenerates
// the Formation's topology ConfigMap every reconcile (Open Question
// decision recorded in the grounding ledger).
type FormationReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups=kais.io,resources=formations,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=kais.io,resources=formations/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=formations/finalizers,verbs=update
// +kubebuilder:rbac:groups=kais.io,resources=cells,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch

func (r *FormationReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	formation := &cellmeshv1.Formation{}
	if err := r.Get(ctx, req.NamespacedName, formation); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !formation.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, formation)
	}

	if !controllerutil.ContainsFinalizer(formation, finalizerName) {
		controllerutil.AddFinalizer(formation, finalizerName)
		if err := r.Update(ctx, formation); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	wantNames := make(map[string]bool)
	totalCells := 0
	for _, decl := range formation.Spec.Cells {
		replicas := decl.Replicas
		if replicas <= 0 {
			replicas = 1
		}
		for i := 0; i < replicas; i++ {
			name := fmt.Sprintf("%s-%d", decl.Name, i)
			wantNames[name] = true
			totalCells++
			if err := r.ensureCell(ctx, formation, name, decl.Spec); err != nil {
				logger.Error(err, "failed to ensure cell", "cell", name)
				formation.Status.Phase = cellmeshv1.FormationPhaseFailed
				formation.Status.Message = err.Error()
				return ctrl.Result{}, r.Status().Update(ctx, formation)
			}
		}
	}

	if err := r.scaleDownRemoved(ctx, formation, wantNames); err != nil {
		logger.Error(err, "failed to scale down removed cells")
	}

	route, err := topology.Generate(formation.Spec)
	if err != nil {
		formation.Status.Phase = cellmeshv1.FormationPhaseFailed
		formation.Status.Message = fmt.Sprintf("topology generation failed: %v", err)
		return ctrl.Result{}, r.Status().Update(ctx, formation)
	}
	if err := r.applyTopologyConfigMap(ctx, formation, route); err != nil {
		return ctrl.Result{}, err
	}

	formation.Status.Phase = cellmeshv1.FormationPhaseRunning
	formation.Status.TotalCells = totalCells
	formation.Status.Message = ""
	metrics.FormationsTotalCells.WithLabelValues(formation.Name, formation.Namespace).Set(float64(totalCells))
	return ctrl.Result{}, r.Status().Update(ctx, formation)
}

func (r *FormationReconciler) ensureCell(ctx context.Context, formation *cellmeshv1.Formation, name string, spec cellmeshv1.CellSpec) error {
	cell := &cellmeshv1.Cell{}
	err := r.Get(ctx, types.NamespacedName{Namespace: formation.Namespace, Name: name}, cell)
	if errors.IsNotFound(err) {
		cell = &cellmeshv1.Cell{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: formation.Namespace,
				Labels: map[string]string{
					"cellmesh.kais.io/formation": formation.Name,
				},
			},
			Spec: spec,
		}
		if err := controllerutil.SetControllerReference(formation, cell, r.Scheme); err != nil {
			return err
		}
		return r.Create(ctx, cell)
	}
	if err != nil {
		return err
	}

	fingerprintOld, _ := specFingerprint(cell.Spec)
	fingerprintNew, _ := specFingerprint(spec)
	if fingerprintOld != fingerprintNew {
		cell.Spec = spec
		return r.Update(ctx, cell)
	}
	return nil
}

func (r *FormationReconciler) scaleDownRemoved(ctx context.Context, formation *cellmeshv1.Formation, want map[string]bool) error {
	cells := &cellmeshv1.CellList{}
	if err := r.List(ctx, cells, client.InNamespace(formation.Namespace), client.MatchingLabels{"cellmesh.kais.io/formation": formation.Name}); err != nil {
		return err
	}
	for _, c := range cells.Items {
		if !want[c.Name] {
			if err := r.Delete(ctx, &c); err != nil && !errors.IsNotFound(err) {
				return err
			}
		}
	}
	return nil
}

func (r *FormationReconciler) applyTopologyConfigMap(ctx context.Context, formation *cellmeshv1.Formation, route topology.RouteTable) error {
	raw, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("formation: marshal route table: %w", err)
	}

	cmName := formation.Name + "-topology"
	cm := &corev1.ConfigMap{}
	err = r.Get(ctx, types.NamespacedName{Namespace: formation.Namespace, Name: cmName}, cm)
	if errors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: cmName, Namespace: formation.Namespace},
			Data:       map[string]string{"routeTable.json": string(raw)},
		}
		if err := controllerutil.SetControllerReference(formation, cm, r.Scheme); err != nil {
			return err
		}
		return r.Create(ctx, cm)
	}
	if err != nil {
		return err
	}
	if cm.Data["routeTable.json"] != string(raw) {
		cm.Data = map[string]string{"routeTable.json": string(raw)}
		return r.Update(ctx, cm)
	}
	return nil
}

func (r *FormationReconciler) handleDeletion(ctx context.Context, formation *cellmeshv1.Formation) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(formation, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(formation, finalizerName)
	if err := r.Update(ctx, formation); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *FormationReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.Formation{}).
		Owns(&cellmeshv1.Cell{}).
		Owns(&corev1.ConfigMap{}).
		Complete(r)
}
