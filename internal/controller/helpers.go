/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package controller implements the reconcilers for Cell, Formation,
// Mission, Blueprint, KnowledgeGraph and Channel, plus the CellPolicy
// enforcement layer shared across them.
package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/intstr"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// ctrlObjectMeta builds the common ObjectMeta shape owned child objects
// across this package share.
func ctrlObjectMeta(name, namespace string, extraLabels map[string]string) metav1.ObjectMeta {
	labels := map[string]string{"app.kubernetes.io/managed-by": "cellmesh-controller"}
	for k, v := range extraLabels {
		labels[k] = v
	}
	return metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels}
}

func intstrFromInt(v int) intstr.IntOrString {
	return intstr.FromInt(v)
}

const (
	finalizerName = "cellmesh.kais.io/finalizer"
)

// ownerReference builds the owner reference that makes owned objects
// cascade-delete with owner, the way every controller in this package
// stamps its children.
func ownerReference(owner metav1.Object, gvk schema.GroupVersionKind) metav1.OwnerReference {
	blockOwnerDeletion := true
	controller := true
	return metav1.OwnerReference{
		APIVersion:         gvk.GroupVersion().String(),
		Kind:               gvk.Kind,
		Name:               owner.GetName(),
		UID:                owner.GetUID(),
		Controller:         &controller,
		BlockOwnerDeletion: &blockOwnerDeletion,
	}
}

// specFingerprint hashes any JSON-marshalable spec into a short content
// hash, used to detect changes that warrant a rebuild or a version bump
// (CellController pod rebuild, BlueprintController version bump).
func specFingerprint(spec any) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("controller: fingerprint spec: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16], nil
}

// podPhaseToCellPhase maps a Pod's observed phase onto the CellPhase
// vocabulary.
func podPhaseToCellPhase(pod *corev1.Pod) cellmeshv1.CellPhase {
	if pod == nil {
		return cellmeshv1.CellPhasePending
	}
	switch pod.Status.Phase {
	case corev1.PodPending:
		return cellmeshv1.CellPhasePending
	case corev1.PodRunning:
		return cellmeshv1.CellPhaseRunning
	case corev1.PodSucceeded:
		return cellmeshv1.CellPhaseCompleted
	case corev1.PodFailed:
		return cellmeshv1.CellPhaseFailed
	default:
		return cellmeshv1.CellPhasePending
	}
}

// setCondition upserts a metav1.Condition by type, the way every
// controller here reports detailed status beyond the coarse phase field.
func setCondition(conds *[]metav1.Condition, newCond metav1.Condition) {
	for i, c := range *conds {
		if c.Type == newCond.Type {
			if c.Status != newCond.Status {
				(*conds)[i] = newCond
			} else {
				(*conds)[i].Reason = newCond.Reason
				(*conds)[i].Message = newCond.Message
			}
			return
		}
	}
	*conds = append(*conds, newCond)
}
