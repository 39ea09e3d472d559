/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/config"
	"github.com/kais-io/cellmesh/internal/metrics"
)

// cellFingerprintAnnotation records the content hash of the Cell spec that
// produced the currently running Pod, so the controller only rebuilds the
// Pod when the spec actually changed.
const cellFingerprintAnnotation = "cellmesh.kais.io/spec-fingerprint"

// cellHealthPort is where cmd/cell serves /healthz and /readyz
// (CELL_HEALTH_ADDR's default).
const cellHealthPort = 8081

// CellReconciler reconciles a Cell object: it materialises a Pod
// running the agent runtime binary, maps Pod phase onto CellStatus, and
// enforces any namespaced CellPolicy in scope before creating the Pod.
type CellReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// CellImage is the container image running cmd/cell. Falls back to
	// Config's cluster default, and then config's hardcoded default, when
	// unset.
	CellImage string
	// Config supplies the cellmesh-config ClusterDefaults, including the
	// stuck-Cell staleness threshold, action, and warm-pool sizing. Nil
	// disables the image-default fallback, stuck detection, and warm
	// pool.
	Config *config.Cache

	// RESTConfig and Clientset are required to claim a warm pod (they
	// drive the exec call that injects a CellSpec into an already-running
	// idle pod). Nil disables warm-pool claiming; CellController falls
	// back to cold-building a Pod per Cell as it always has.
	RESTConfig *rest.Config
	Clientset  kubernetes.Interface
	// WarmPoolNamespace is where idle warm pods live; defaults to
	// "default" when unset, since pods in the pool aren't yet associated
	// with any particular Cell's namespace.
	WarmPoolNamespace string

	warmPoolMu   sync.Mutex
	warmPoolLast map[string]time.Time
}

// +kubebuilder:rbac:groups=kais.io,resources=cells,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=kais.io,resources=cells/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=cells/finalizers,verbs=update
// +kubebuilder:rbac:groups=kais.io,resources=cellpolicies,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;create;update;patch;delete

func (r *CellReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	cell := &cellmeshv1.Cell{}
	if err := r.Get(ctx, req.NamespacedName, cell); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !cell.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, cell)
	}

	if !controllerutil.ContainsFinalizer(cell, finalizerName) {
		controllerutil.AddFinalizer(cell, finalizerName)
		if err := r.Update(ctx, cell); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if violation := enforceCellPolicy(ctx, r.Client, cell.Namespace, cell.Spec); violation != "" {
		cell.Status.Phase = cellmeshv1.CellPhaseFailed
		cell.Status.Message = fmt.Sprintf("policy violation: %s", violation)
		setCondition(&cell.Status.Conditions, metav1.Condition{
			Type: "PolicyCompliant", Status: metav1.ConditionFalse,
			Reason: "PolicyViolation", Message: violation, ObservedGeneration: cell.Generation,
		})
		return ctrl.Result{}, r.Status().Update(ctx, cell)
	}

	fingerprint, err := specFingerprint(cell.Spec)
	if err != nil {
		return ctrl.Result{}, err
	}

	cellImage := r.CellImage
	if cellImage == "" && r.Config != nil {
		cellImage = r.Config.Get(ctx).CellImage
	}

	// Opportunistically top up the warm pool for this Cell's (provider,
	// model) pair; best-effort, never fails the Cell's own reconcile.
	if err := r.reconcileWarmPool(ctx, cellImage, cell.Spec.Mind.Provider, cell.Spec.Mind.Model); err != nil {
		log.FromContext(ctx).Error(err, "warm pool replenish failed", "cell", cell.Name)
	}

	podName := cell.Status.PodName
	if podName == "" {
		podName = cell.Name + "-agent"
	}
	pod := &corev1.Pod{}
	err = r.Get(ctx, types.NamespacedName{Namespace: cell.Namespace, Name: podName}, pod)
	switch {
	case errors.IsNotFound(err):
		if claimed, claimErr := r.claimAndStartWarmPod(ctx, cell, fingerprint); claimErr == nil && claimed != nil {
			cell.Status.Phase = cellmeshv1.CellPhasePending
			cell.Status.PodName = claimed.Name
			metrics.EmitSpanEvent(ctx, "cell.claimed_warm_pod", metrics.CellEventAttrs(cell.Namespace, cell.Name, string(cellmeshv1.CellPhasePending))...)
			metrics.CellsTotal.WithLabelValues(string(cellmeshv1.CellPhasePending), cell.Namespace).Inc()
			return ctrl.Result{}, r.Status().Update(ctx, cell)
		} else if claimErr != nil {
			log.FromContext(ctx).Error(claimErr, "warm pod claim failed, cold-building instead", "cell", cell.Name)
		}

		podName = cell.Name + "-agent"
		built, buildErr := r.buildPod(cell, podName, fingerprint, cellImage)
		if buildErr != nil {
			return ctrl.Result{}, buildErr
		}
		if err := controllerutil.SetControllerReference(cell, built, r.Scheme); err != nil {
			return ctrl.Result{}, err
		}
		if err := r.Create(ctx, built); err != nil && !errors.IsAlreadyExists(err) {
			return ctrl.Result{}, err
		}
		cell.Status.Phase = cellmeshv1.CellPhasePending
		cell.Status.PodName = podName
		metrics.EmitSpanEvent(ctx, "cell.created", metrics.CellEventAttrs(cell.Namespace, cell.Name, string(cellmeshv1.CellPhasePending))...)
		metrics.CellsTotal.WithLabelValues(string(cellmeshv1.CellPhasePending), cell.Namespace).Inc()
		return ctrl.Result{}, r.Status().Update(ctx, cell)
	case err != nil:
		return ctrl.Result{}, err
	}

	if pod.Annotations[cellFingerprintAnnotation] != fingerprint {
		logger.Info("cell spec changed, recreating pod", "cell", cell.Name)
		if err := r.Delete(ctx, pod); err != nil && !errors.IsNotFound(err) {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	newPhase := podPhaseToCellPhase(pod)
	if newPhase != cell.Status.Phase {
		cell.Status.Phase = newPhase
		now := metav1.Now()
		cell.Status.LastActive = &now
		metrics.CellsTotal.WithLabelValues(string(newPhase), cell.Namespace).Inc()
		metrics.EmitSpanEvent(ctx, "cell.phase_changed", metrics.CellEventAttrs(cell.Namespace, cell.Name, string(newPhase))...)
		if newPhase == cellmeshv1.CellPhaseRunning {
			metrics.CellsActive.WithLabelValues(cell.Namespace).Inc()
		}
		if isTerminalCellPhase(newPhase) {
			metrics.CellsActive.WithLabelValues(cell.Namespace).Dec()
			if cost, parseErr := strconv.ParseFloat(cell.Status.TotalCost, 64); parseErr == nil {
				metrics.CellCostUSD.Observe(cost)
			}
		}
		return ctrl.Result{}, r.Status().Update(ctx, cell)
	}

	if newPhase == cellmeshv1.CellPhaseRunning {
		if stuck, action, reason := r.checkStuck(ctx, cell); stuck {
			logger.Info("stuck cell detected", "cell", cell.Name, "action", action, "reason", reason)
			metrics.StuckDetectedTotal.WithLabelValues(action, cell.Namespace).Inc()
			if action == "kill" {
				if err := r.Delete(ctx, pod); err != nil && !errors.IsNotFound(err) {
					return ctrl.Result{}, err
				}
				cell.Status.Phase = cellmeshv1.CellPhaseFailed
				cell.Status.Message = "stuck: " + reason
				metrics.CellsActive.WithLabelValues(cell.Namespace).Dec()
				metrics.CellsTotal.WithLabelValues(string(cellmeshv1.CellPhaseFailed), cell.Namespace).Inc()
				return ctrl.Result{}, r.Status().Update(ctx, cell)
			}
		}
	}

	return ctrl.Result{}, nil
}

func isTerminalCellPhase(phase cellmeshv1.CellPhase) bool {
	return phase == cellmeshv1.CellPhaseCompleted || phase == cellmeshv1.CellPhaseFailed
}

// checkStuck scores a Running Cell for stuck behavior: tool-call
// diversity and prompt repetition read from the pod's log stream
// (stuck.go), weighted together with status.lastActive staleness.
// Without a Clientset the log signals read as healthy and only
// staleness can trip the score.
func (r *CellReconciler) checkStuck(ctx context.Context, cell *cellmeshv1.Cell) (stuck bool, action, reason string) {
	if r.Config == nil {
		return false, "", ""
	}
	defaults := r.Config.Get(ctx)
	if defaults.StuckStaleMinutes <= 0 {
		return false, "", ""
	}

	score := r.checkStuckSignals(ctx, cell, defaults)
	if !score.IsStuck {
		return false, "", ""
	}
	action = defaults.StuckAction
	if action == "" {
		action = "warn"
	}
	return true, action, fmt.Sprintf("score %.2f: %s", score.Aggregate, score.Reason)
}

func (r *CellReconciler) handleDeletion(ctx context.Context, cell *cellmeshv1.Cell) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(cell, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(cell, finalizerName)
	if err := r.Update(ctx, cell); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// buildPod materialises the Pod running cmd/cell for this Cell. The agent
// process environment is CELL_NAME, CELL_NAMESPACE and CELL_SPEC (the
// Cell's full spec as JSON) per the external agent-process contract;
// NATS_URL is carried for parity with that contract even though this
// module's bus is in-process (see DESIGN.md). The Mind provider's API
// key can't travel inside CELL_SPEC (it's only a SecretKeyRef there), so
// it's additionally wired as its own secret-sourced env var.
func (r *CellReconciler) buildPod(cell *cellmeshv1.Cell, podName, fingerprint, cellImage string) (*corev1.Pod, error) {
	specJSON, err := json.Marshal(cell.Spec)
	if err != nil {
		return nil, fmt.Errorf("cell %s: marshal spec: %w", cell.Name, err)
	}

	env := []corev1.EnvVar{
		{Name: "CELL_NAME", Value: cell.Name},
		{Name: "CELL_NAMESPACE", Value: cell.Namespace},
		{Name: "CELL_SPEC", Value: string(specJSON)},
		{Name: "NATS_URL", Value: "nats://localhost:4222"},
	}
	if cell.Spec.Mind.ApiKeyRef != nil {
		env = append(env, corev1.EnvVar{
			Name: "CELL_MIND_API_KEY",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: cell.Spec.Mind.ApiKeyRef.SecretName},
					Key:                  cell.Spec.Mind.ApiKeyRef.Key,
				},
			},
		})
	}

	resources, err := buildResourceRequirements(cell.Spec.Resources)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", cell.Name, err)
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: cell.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":       "cellmesh-cell",
				"app.kubernetes.io/instance":   cell.Name,
				"app.kubernetes.io/managed-by": "cellmesh-controller",
			},
			Annotations: map[string]string{cellFingerprintAnnotation: fingerprint},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:      "cell",
					Image:     cellImage,
					Env:       env,
					Resources: resources,
					Ports: []corev1.ContainerPort{
						{Name: "health", ContainerPort: cellHealthPort},
					},
					LivenessProbe: &corev1.Probe{
						ProbeHandler: corev1.ProbeHandler{
							HTTPGet: &corev1.HTTPGetAction{Path: "/healthz", Port: intstrFromInt(cellHealthPort)},
						},
						InitialDelaySeconds: 5,
						PeriodSeconds:       20,
					},
					// Readiness tracks the agent loop's state: a Failed
					// loop reports not-ready even before the process exits.
					ReadinessProbe: &corev1.Probe{
						ProbeHandler: corev1.ProbeHandler{
							HTTPGet: &corev1.HTTPGetAction{Path: "/readyz", Port: intstrFromInt(cellHealthPort)},
						},
						InitialDelaySeconds: 2,
						PeriodSeconds:       10,
					},
				},
			},
		},
	}
	return pod, nil
}

func buildResourceRequirements(rr *cellmeshv1.ResourceRequirements) (corev1.ResourceRequirements, error) {
	out := corev1.ResourceRequirements{}
	if rr == nil {
		return out, nil
	}
	parse := func(list *cellmeshv1.ResourceList) (corev1.ResourceList, error) {
		if list == nil {
			return nil, nil
		}
		rl := corev1.ResourceList{}
		if list.CPU != "" {
			q, err := resource.ParseQuantity(list.CPU)
			if err != nil {
				return nil, fmt.Errorf("invalid cpu %q: %w", list.CPU, err)
			}
			rl[corev1.ResourceCPU] = q
		}
		if list.Memory != "" {
			q, err := resource.ParseQuantity(list.Memory)
			if err != nil {
				return nil, fmt.Errorf("invalid memory %q: %w", list.Memory, err)
			}
			rl[corev1.ResourceMemory] = q
		}
		return rl, nil
	}
	reqs, err := parse(rr.Requests)
	if err != nil {
		return out, err
	}
	lims, err := parse(rr.Limits)
	if err != nil {
		return out, err
	}
	out.Requests, out.Limits = reqs, lims
	return out, nil
}

func (r *CellReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.Cell{}).
		Owns(&corev1.Pod{}).
		Complete(r)
}
