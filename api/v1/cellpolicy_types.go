/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// CellPolicySpec defines fine-grained restrictions on Cells created within
// a namespace: capability allow/deny lists, image glob patterns, and
// budget/timeout/concurrency ceilings. A namespaced enrichment layered on
// top of the core Cell/Formation/Mission model.
type CellPolicySpec struct {
	// NamespaceSelector is stored on the policy but not consulted by the
	// controller: a policy applies only to Cells in the namespace it is
	// created in, whatever the selector says.
	// +optional
	NamespaceSelector *metav1.LabelSelector `json:"namespaceSelector,omitempty"`

	// AllowedTools is the whitelist of tool names Cells can request.
	// If empty, no allow-list restriction applies.
	// +optional
	AllowedTools []string `json:"allowedTools,omitempty"`

	// DeniedTools explicitly blocks specific tool names (overrides allowed).
	// +optional
	DeniedTools []string `json:"deniedTools,omitempty"`

	// AllowedProviders are glob patterns for permitted Mind providers,
	// e.g. ["anthropic", "ollama-*"].
	// +optional
	AllowedProviders []string `json:"allowedProviders,omitempty"`

	// MaxBudget sets the maximum budget any single Cell can request.
	// +optional
	MaxBudget *BudgetSpec `json:"maxBudget,omitempty"`

	// MaxRecursionDepth caps recursion.maxDepth any Cell in scope may set.
	// +optional
	MaxRecursionDepth *int `json:"maxRecursionDepth,omitempty"`

	// MaxConcurrentCells limits active Cells per namespace.
	// +optional
	MaxConcurrentCells *int `json:"maxConcurrentCells,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="MaxDepth",type=integer,JSONPath=`.spec.maxRecursionDepth`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// CellPolicy defines fine-grained restrictions for Cells in a namespace.
// When present, Cells in the namespace must comply with all matching policies.
type CellPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec CellPolicySpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// CellPolicyList contains a list of CellPolicy.
type CellPolicyList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []CellPolicy `json:"items"`
}

func init() {
	SchemeBuilder.Register(&CellPolicy{}, &CellPolicyList{})
}

func (in *CellPolicy) DeepCopyInto(out *CellPolicy) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

func (in *CellPolicy) DeepCopy() *CellPolicy {
	if in == nil {
		return nil
	}
	out := new(CellPolicy)
	in.DeepCopyInto(out)
	return out
}

func (in *CellPolicy) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *CellPolicyList) DeepCopyInto(out *CellPolicyList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]CellPolicy, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *CellPolicyList) DeepCopy() *CellPolicyList {
	if in == nil {
		return nil
	}
	out := new(CellPolicyList)
	in.DeepCopyInto(out)
	return out
}

func (in *CellPolicyList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *CellPolicySpec) DeepCopyInto(out *CellPolicySpec) {
	*out = *in
	if in.NamespaceSelector != nil {
		out.NamespaceSelector = in.NamespaceSelector.DeepCopy()
	}
	if in.AllowedTools != nil {
		out.AllowedTools = append([]string(nil), in.AllowedTools...)
	}
	if in.DeniedTools != nil {
		out.DeniedTools = append([]string(nil), in.DeniedTools...)
	}
	if in.AllowedProviders != nil {
		out.AllowedProviders = append([]string(nil), in.AllowedProviders...)
	}
	out.MaxBudget = in.MaxBudget.DeepCopy()
	if in.MaxRecursionDepth != nil {
		v := *in.MaxRecursionDepth
		out.MaxRecursionDepth = &v
	}
	if in.MaxConcurrentCells != nil {
		v := *in.MaxConcurrentCells
		out.MaxConcurrentCells = &v
	}
}

func (in *CellPolicySpec) DeepCopy() *CellPolicySpec {
	if in == nil {
		return nil
	}
	out := new(CellPolicySpec)
	in.DeepCopyInto(out)
	return out
}
