/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/config"
)

// KnowledgeGraphReconciler reconciles a KnowledgeGraph object: for
// dedicated scope it materialises a standalone neo4j-<name> Pod/Service
// pair, for shared scope it records a logical database name within the
// platform store; either way it resolves the ancestor parentChain by
// walking parentRef.
type KnowledgeGraphReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// Neo4jImage backs dedicated KnowledgeGraphs. Falls back to Config's
	// cluster default when unset.
	Neo4jImage string
	// Config supplies the cellmesh-config ClusterDefaults.
	Config *config.Cache
}

// +kubebuilder:rbac:groups=kais.io,resources=knowledgegraphs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=kais.io,resources=knowledgegraphs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=knowledgegraphs/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=pods;services,verbs=get;list;watch;create;update;patch;delete

func (r *KnowledgeGraphReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	kg := &cellmeshv1.KnowledgeGraph{}
	if err := r.Get(ctx, req.NamespacedName, kg); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !kg.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, kg)
	}

	if !controllerutil.ContainsFinalizer(kg, finalizerName) {
		controllerutil.AddFinalizer(kg, finalizerName)
		if err := r.Update(ctx, kg); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	chain, err := r.resolveParentChain(ctx, kg)
	if err != nil {
		kg.Status.Phase = cellmeshv1.KnowledgeGraphPhaseFailed
		kg.Status.Message = err.Error()
		return ctrl.Result{}, r.Status().Update(ctx, kg)
	}
	kg.Status.ParentChain = chain

	if kg.Spec.Dedicated {
		if err := r.ensureDedicated(ctx, kg); err != nil {
			kg.Status.Phase = cellmeshv1.KnowledgeGraphPhaseFailed
			kg.Status.Message = err.Error()
			return ctrl.Result{}, r.Status().Update(ctx, kg)
		}
		// Ready only once the backing pod is actually addressable behind
		// the service, not merely created.
		addressable, err := r.backingPodReady(ctx, kg)
		if err != nil {
			return ctrl.Result{}, err
		}
		if !addressable {
			kg.Status.Phase = cellmeshv1.KnowledgeGraphPhasePending
			kg.Status.Message = "waiting for backing neo4j pod"
			if err := r.Status().Update(ctx, kg); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
		}
		kg.Status.Database = "neo4j"
		kg.Status.Endpoint = fmt.Sprintf("neo4j-%s.%s.svc:7687", kg.Name, kg.Namespace)
	} else {
		kg.Status.Database = kg.Name
		kg.Status.Endpoint = ""
	}

	kg.Status.Phase = cellmeshv1.KnowledgeGraphPhaseReady
	kg.Status.Message = ""
	return ctrl.Result{}, r.Status().Update(ctx, kg)
}

// backingPodReady reports whether the dedicated neo4j pod is running and
// passing readiness, i.e. the service in front of it has an endpoint.
func (r *KnowledgeGraphReconciler) backingPodReady(ctx context.Context, kg *cellmeshv1.KnowledgeGraph) (bool, error) {
	pod := &corev1.Pod{}
	err := r.Get(ctx, types.NamespacedName{Namespace: kg.Namespace, Name: "neo4j-" + kg.Name}, pod)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if pod.Status.Phase != corev1.PodRunning {
		return false, nil
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue, nil
		}
	}
	return false, nil
}

// resolveParentChain walks ParentRef, nearest ancestor first, failing on
// a cycle.
func (r *KnowledgeGraphReconciler) resolveParentChain(ctx context.Context, kg *cellmeshv1.KnowledgeGraph) ([]string, error) {
	if kg.Spec.ParentRef == "" {
		return nil, nil
	}
	var chain []string
	visited := map[string]bool{kg.Name: true}
	current := kg.Spec.ParentRef
	for current != "" {
		if visited[current] {
			return nil, fmt.Errorf("knowledgegraph: parentRef cycle detected at %q", current)
		}
		visited[current] = true
		chain = append(chain, current)

		parent := &cellmeshv1.KnowledgeGraph{}
		if err := r.Get(ctx, client.ObjectKey{Namespace: kg.Namespace, Name: current}, parent); err != nil {
			if errors.IsNotFound(err) {
				return nil, fmt.Errorf("knowledgegraph: parentRef %q not found", current)
			}
			return nil, err
		}
		current = parent.Spec.ParentRef
	}
	return chain, nil
}

func (r *KnowledgeGraphReconciler) ensureDedicated(ctx context.Context, kg *cellmeshv1.KnowledgeGraph) error {
	name := "neo4j-" + kg.Name

	image := r.Neo4jImage
	if image == "" && r.Config != nil {
		image = r.Config.Get(ctx).Neo4jImage
	}

	pod := &corev1.Pod{}
	err := r.Get(ctx, types.NamespacedName{Namespace: kg.Namespace, Name: name}, pod)
	if errors.IsNotFound(err) {
		resources, rerr := buildResourceRequirements(kg.Spec.Resources)
		if rerr != nil {
			return rerr
		}
		pod = &corev1.Pod{
			ObjectMeta: ctrlObjectMeta(name, kg.Namespace, map[string]string{
				"app.kubernetes.io/name":     "neo4j",
				"app.kubernetes.io/instance": kg.Name,
			}),
			Spec: corev1.PodSpec{
				RestartPolicy: corev1.RestartPolicyAlways,
				Containers: []corev1.Container{
					{
						Name:      "neo4j",
						Image:     image,
						Resources: resources,
						Ports: []corev1.ContainerPort{
							{Name: "bolt", ContainerPort: 7687},
						},
					},
				},
			},
		}
		if err := controllerutil.SetControllerReference(kg, pod, r.Scheme); err != nil {
			return err
		}
		if err := r.Create(ctx, pod); err != nil && !errors.IsAlreadyExists(err) {
			return err
		}
	} else if err != nil {
		return err
	}

	svc := &corev1.Service{}
	err = r.Get(ctx, types.NamespacedName{Namespace: kg.Namespace, Name: name}, svc)
	if errors.IsNotFound(err) {
		svc = &corev1.Service{
			ObjectMeta: ctrlObjectMeta(name, kg.Namespace, nil),
			Spec: corev1.ServiceSpec{
				Selector: map[string]string{"app.kubernetes.io/instance": kg.Name},
				Ports: []corev1.ServicePort{
					{Name: "bolt", Port: 7687, TargetPort: intstrFromInt(7687)},
				},
			},
		}
		if err := controllerutil.SetControllerReference(kg, svc, r.Scheme); err != nil {
			return err
		}
		if err := r.Create(ctx, svc); err != nil && !errors.IsAlreadyExists(err) {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

func (r *KnowledgeGraphReconciler) handleDeletion(ctx context.Context, kg *cellmeshv1.KnowledgeGraph) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(kg, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(kg, finalizerName)
	if err := r.Update(ctx, kg); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *KnowledgeGraphReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.KnowledgeGraph{}).
		Owns(&corev1.Pod{}).
		Owns(&corev1.Service{}).
		Complete(r)
}
