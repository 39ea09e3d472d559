/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SpawnPolicy governs whether a Cell may recursively spawn children.
type SpawnPolicy string

const (
	SpawnPolicyOpen            SpawnPolicy = "open"
	SpawnPolicyClosed          SpawnPolicy = "closed"
	SpawnPolicyRequireApproval SpawnPolicy = "require_approval"
)

// TopologyKind names a Formation's communication topology.
type TopologyKind string

const (
	TopologyFullMesh   TopologyKind = "full_mesh"
	TopologyStar       TopologyKind = "star"
	TopologyRing       TopologyKind = "ring"
	TopologyHierarchy  TopologyKind = "hierarchy"
	TopologyBlackboard TopologyKind = "blackboard"
	TopologyBroadcast  TopologyKind = "broadcast"
	TopologyRoute      TopologyKind = "route"
)

// SecretKeyRef references a key in a Kubernetes Secret, e.g. for a model
// provider's API key.
type SecretKeyRef struct {
	// +kubebuilder:validation:Required
	SecretName string `json:"secretName"`
	// +kubebuilder:validation:Required
	Key string `json:"key"`
}

// ResourceList mirrors corev1.ResourceList for cpu/memory quantities
// expressed as strings (parsed with resource.ParseQuantity at pod-build time).
type ResourceList struct {
	// +optional
	CPU string `json:"cpu,omitempty"`
	// +optional
	Memory string `json:"memory,omitempty"`
}

// ResourceRequirements bounds a Cell's compute footprint.
type ResourceRequirements struct {
	// +optional
	Requests *ResourceList `json:"requests,omitempty"`
	// +optional
	Limits *ResourceList `json:"limits,omitempty"`
}

// BudgetSpec caps token/cost spend for a Cell or Formation.
type BudgetSpec struct {
	// MaxTokensPerTurn caps tokens consumed by a single think/act turn.
	// +optional
	MaxTokensPerTurn *int64 `json:"maxTokensPerTurn,omitempty"`
	// MaxCostPerHour caps spend within a tumbling hour window.
	// +optional
	MaxCostPerHour string `json:"maxCostPerHour,omitempty"`
	// MaxTotalCost is the lifetime cost ceiling for the Cell.
	// +optional
	MaxTotalCost string `json:"maxTotalCost,omitempty"`
}

// WorkingMemoryConfig bounds a Cell's working memory.
type WorkingMemoryConfig struct {
	// +kubebuilder:default=200
	// +optional
	MaxMessages int `json:"maxMessages,omitempty"`
	// +kubebuilder:default=120
	// +optional
	SummarizeAfter int `json:"summarizeAfter,omitempty"`
}

// MindSpec declares the pluggable language-model capability a Cell thinks with.
type MindSpec struct {
	// +kubebuilder:validation:Required
	Provider string `json:"provider"`
	// +kubebuilder:validation:Required
	Model string `json:"model"`
	// +kubebuilder:validation:Required
	SystemPrompt string `json:"systemPrompt"`
	// +optional
	Temperature *float64 `json:"temperature,omitempty"`
	// +optional
	MaxTokens *int `json:"maxTokens,omitempty"`
	// +optional
	WorkingMemory *WorkingMemoryConfig `json:"workingMemory,omitempty"`
	// +optional
	ApiKeyRef *SecretKeyRef `json:"apiKeyRef,omitempty"`
}

// RecursionSpec bounds spawn depth, descendant count, and spawn policy for a Cell tree.
type RecursionSpec struct {
	// +kubebuilder:default=3
	// +optional
	MaxDepth int `json:"maxDepth,omitempty"`
	// +optional
	MaxDescendants *int `json:"maxDescendants,omitempty"`
	// +kubebuilder:validation:Enum=open;closed;require_approval
	// +kubebuilder:default=closed
	// +optional
	SpawnPolicy SpawnPolicy `json:"spawnPolicy,omitempty"`
}

// DeepCopy methods for the common value types embedded by multiple specs.

func (in *SecretKeyRef) DeepCopy() *SecretKeyRef {
	if in == nil {
		return nil
	}
	out := new(SecretKeyRef)
	*out = *in
	return out
}

func (in *ResourceList) DeepCopy() *ResourceList {
	if in == nil {
		return nil
	}
	out := new(ResourceList)
	*out = *in
	return out
}

func (in *ResourceRequirements) DeepCopy() *ResourceRequirements {
	if in == nil {
		return nil
	}
	out := new(ResourceRequirements)
	if in.Requests != nil {
		out.Requests = in.Requests.DeepCopy()
	}
	if in.Limits != nil {
		out.Limits = in.Limits.DeepCopy()
	}
	return out
}

func (in *BudgetSpec) DeepCopy() *BudgetSpec {
	if in == nil {
		return nil
	}
	out := new(BudgetSpec)
	*out = *in
	if in.MaxTokensPerTurn != nil {
		v := *in.MaxTokensPerTurn
		out.MaxTokensPerTurn = &v
	}
	return out
}

func (in *WorkingMemoryConfig) DeepCopy() *WorkingMemoryConfig {
	if in == nil {
		return nil
	}
	out := new(WorkingMemoryConfig)
	*out = *in
	return out
}

func (in *MindSpec) DeepCopy() *MindSpec {
	if in == nil {
		return nil
	}
	out := new(MindSpec)
	*out = *in
	if in.Temperature != nil {
		v := *in.Temperature
		out.Temperature = &v
	}
	if in.MaxTokens != nil {
		v := *in.MaxTokens
		out.MaxTokens = &v
	}
	out.WorkingMemory = in.WorkingMemory.DeepCopy()
	out.ApiKeyRef = in.ApiKeyRef.DeepCopy()
	return out
}

func (in *RecursionSpec) DeepCopy() *RecursionSpec {
	if in == nil {
		return nil
	}
	out := new(RecursionSpec)
	*out = *in
	if in.MaxDescendants != nil {
		v := *in.MaxDescendants
		out.MaxDescendants = &v
	}
	return out
}

// OwnerChain is a convenience alias used by controllers building owner
// references; kept here so every kind's controller constructs them the
// same way.
type OwnerChain = metav1.OwnerReference
