/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// Warm pool labels. A pod carries warmPoolLabel=true for its lifetime and
// warmStatusLabel idle|claimed, plus the (provider, model) key it was
// built for so CellController only claims a pod whose runtime matches
// the requesting Cell's Mind.
const (
	warmPoolLabel     = "cellmesh.kais.io/warm-pool"
	warmStatusLabel   = "cellmesh.kais.io/warm-status"
	warmProviderLabel = "cellmesh.kais.io/warm-provider"
	warmModelLabel    = "cellmesh.kais.io/warm-model"

	warmStatusIdle    = "idle"
	warmStatusClaimed = "claimed"

	warmPoolCooldown = 30 * time.Second

	// cellSpecInboxPath is where a claimed warm pod's entrypoint waits
	// for its CellSpec JSON to appear before starting cmd/cell for real.
	cellSpecInboxPath = "/inbox/cell_spec.json"
)

// warmPoolKey identifies one (provider, model) pool.
func warmPoolKey(provider, model string) string {
	return provider + "/" + model
}

// reconcileWarmPool tops up the idle pool for (provider, model) to
// Config's WarmPoolSize, at most once per warmPoolCooldown per key. The
// pool is keyed per Mind runtime since Cells vary in provider/model.
func (r *CellReconciler) reconcileWarmPool(ctx context.Context, cellImage, provider, model string) error {
	if r.Config == nil {
		return nil
	}
	defaults := r.Config.Get(ctx)
	if !defaults.WarmPoolEnabled || defaults.WarmPoolSize <= 0 {
		return nil
	}

	key := warmPoolKey(provider, model)
	if r.warmPoolLast == nil {
		r.warmPoolMu.Lock()
		if r.warmPoolLast == nil {
			r.warmPoolLast = make(map[string]time.Time)
		}
		r.warmPoolMu.Unlock()
	}

	r.warmPoolMu.Lock()
	last := r.warmPoolLast[key]
	if time.Since(last) < warmPoolCooldown {
		r.warmPoolMu.Unlock()
		return nil
	}
	r.warmPoolLast[key] = time.Now()
	r.warmPoolMu.Unlock()

	podList := &corev1.PodList{}
	if err := r.List(ctx, podList, client.InNamespace(r.warmPoolNamespace()), client.MatchingLabels{
		warmPoolLabel:     "true",
		warmStatusLabel:   warmStatusIdle,
		warmProviderLabel: sanitizeLabelValue(provider),
		warmModelLabel:    sanitizeLabelValue(model),
	}); err != nil {
		return fmt.Errorf("list warm pods: %w", err)
	}

	deficit := defaults.WarmPoolSize - len(podList.Items)
	if deficit <= 0 {
		return nil
	}

	image := defaults.WarmPoolImage
	if image == "" {
		image = cellImage
	}

	logger := log.FromContext(ctx)
	logger.Info("replenishing cell warm pool", "provider", provider, "model", model, "current", len(podList.Items), "target", defaults.WarmPoolSize)

	for i := 0; i < deficit; i++ {
		if _, err := r.buildWarmPod(ctx, image, provider, model); err != nil {
			return fmt.Errorf("build warm pod %d/%d for %s: %w", i+1, deficit, key, err)
		}
	}
	return nil
}

// buildWarmPod creates one idle pod for (provider, model), running
// cmd/cell's entrypoint in a mode that waits for cellSpecInboxPath
// before it decodes a real CellSpec. A Cell's /workspace is an emptyDir
// scoped to its own pod lifetime, not retained across claims.
func (r *CellReconciler) buildWarmPod(ctx context.Context, image, provider, model string) (*corev1.Pod, error) {
	podName := fmt.Sprintf("cellmesh-warm-%d", time.Now().UnixNano())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: r.warmPoolNamespace(),
			Labels: map[string]string{
				"app.kubernetes.io/name":       "cellmesh-warm",
				"app.kubernetes.io/managed-by": "cellmesh-controller",
				warmPoolLabel:                  "true",
				warmStatusLabel:                warmStatusIdle,
				warmProviderLabel:              sanitizeLabelValue(provider),
				warmModelLabel:                 sanitizeLabelValue(model),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "cell",
					Image: image,
					Env: []corev1.EnvVar{
						{Name: "CELL_SPEC_FILE", Value: cellSpecInboxPath},
						{Name: "CELL_NAMESPACE", Value: r.warmPoolNamespace()},
					},
					VolumeMounts: []corev1.VolumeMount{
						{Name: "inbox", MountPath: "/inbox"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{Name: "inbox", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
			},
		},
	}

	if err := r.Create(ctx, pod); err != nil {
		return nil, fmt.Errorf("create warm pod: %w", err)
	}
	return pod, nil
}

// claimWarmPod finds one idle pod matching (provider, model), marks it
// claimed, and attaches cell as its controller owner reference so it
// cascades with the rest of the Cell's resources.
//
// Owner references cannot cross namespaces, so the pool only serves
// Cells in r.warmPoolNamespace(); a Cell in any other namespace always
// falls back to a cold-built Pod. fingerprint is stamped onto the
// claimed pod as cellFingerprintAnnotation so CellController's spec-change
// detection (cell_controller.go) doesn't immediately recreate it.
func (r *CellReconciler) claimWarmPod(ctx context.Context, cell *cellmeshv1.Cell, provider, model, fingerprint string) (*corev1.Pod, error) {
	if cell.Namespace != r.warmPoolNamespace() {
		return nil, nil
	}

	podList := &corev1.PodList{}
	if err := r.List(ctx, podList, client.InNamespace(r.warmPoolNamespace()), client.MatchingLabels{
		warmPoolLabel:     "true",
		warmStatusLabel:   warmStatusIdle,
		warmProviderLabel: sanitizeLabelValue(provider),
		warmModelLabel:    sanitizeLabelValue(model),
	}); err != nil {
		return nil, fmt.Errorf("list warm pods: %w", err)
	}
	if len(podList.Items) == 0 {
		return nil, nil
	}

	pod := &podList.Items[0]
	pod.Labels[warmStatusLabel] = warmStatusClaimed
	pod.Labels["cellmesh.kais.io/cell"] = cell.Name
	if pod.Annotations == nil {
		pod.Annotations = map[string]string{}
	}
	pod.Annotations[cellFingerprintAnnotation] = fingerprint
	if err := controllerutil.SetControllerReference(cell, pod, r.Scheme); err != nil {
		return nil, fmt.Errorf("set owner ref on warm pod: %w", err)
	}
	if err := r.Update(ctx, pod); err != nil {
		return nil, fmt.Errorf("claim warm pod: %w", err)
	}
	return pod, nil
}

// injectCellSpec writes specJSON into the claimed pod's inbox via exec,
// unblocking its waiting cmd/cell entrypoint. Requires RESTConfig and
// Clientset to be wired (cmd/manager); without them warm-pool claiming
// is skipped entirely and CellController cold-builds a Pod as before.
func (r *CellReconciler) injectCellSpec(ctx context.Context, pod *corev1.Pod, specJSON []byte) error {
	if r.RESTConfig == nil || r.Clientset == nil {
		return fmt.Errorf("warm pool injection requires RESTConfig and Clientset")
	}

	req := r.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod.Name).
		Namespace(pod.Namespace).
		SubResource("exec")
	req.VersionedParams(&corev1.PodExecOptions{
		Container: "cell",
		Command:   []string{"sh", "-c", "mkdir -p /inbox && cat > " + cellSpecInboxPath},
		Stdin:     true,
	}, clientgoscheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(r.RESTConfig, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}
	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin: bytes.NewReader(specJSON),
	})
}

// claimAndStartWarmPod claims an idle warm pod matching cell's Mind
// provider/model, injects cell's CellSpec into it, and returns it ready
// to run. Returns (nil, nil) when warm-pool wiring is absent or no idle
// pod is available; returns a non-nil error when listing or claiming a
// pod fails, or when a pod was claimed but injection failed. The caller
// cold-builds a Pod in every case that returns no pod.
func (r *CellReconciler) claimAndStartWarmPod(ctx context.Context, cell *cellmeshv1.Cell, fingerprint string) (*corev1.Pod, error) {
	if r.RESTConfig == nil || r.Clientset == nil {
		return nil, nil
	}

	pod, err := r.claimWarmPod(ctx, cell, cell.Spec.Mind.Provider, cell.Spec.Mind.Model, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("claim warm pod: %w", err)
	}
	if pod == nil {
		return nil, nil
	}

	// The assignment carries name and namespace alongside the spec: a warm
	// pod starts with no CELL_NAME of its own and learns its identity here.
	assignment, err := json.Marshal(map[string]any{
		"name":      cell.Name,
		"namespace": cell.Namespace,
		"spec":      cell.Spec,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cell assignment for warm pod %s: %w", pod.Name, err)
	}
	if err := r.injectCellSpec(ctx, pod, assignment); err != nil {
		return nil, fmt.Errorf("inject cell spec into warm pod %s: %w", pod.Name, err)
	}

	log.FromContext(ctx).Info("claimed warm pod for cell", "cell", cell.Name, "pod", pod.Name, "fingerprint", fingerprint)
	return pod, nil
}

func (r *CellReconciler) warmPoolNamespace() string {
	if r.WarmPoolNamespace != "" {
		return r.WarmPoolNamespace
	}
	return "default"
}

// sanitizeLabelValue keeps provider/model names safe as label values
// (k8s labels disallow "/", which a model name like "claude-3/opus"
// could otherwise contain).
func sanitizeLabelValue(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == ':' {
			out[i] = '-'
		} else {
			out[i] = c
		}
	}
	if len(out) == 0 {
		return "none"
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return string(out)
}
