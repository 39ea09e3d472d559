/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// KnowledgeGraphPhase is the observed lifecycle phase of a KnowledgeGraph.
type KnowledgeGraphPhase string

const (
	KnowledgeGraphPhasePending KnowledgeGraphPhase = "Pending"
	KnowledgeGraphPhaseReady   KnowledgeGraphPhase = "Ready"
	KnowledgeGraphPhaseFailed  KnowledgeGraphPhase = "Failed"
)

// ScopeLevel names the granularity a KnowledgeGraph is bound to.
type ScopeLevel string

const (
	ScopeLevelPlatform  ScopeLevel = "platform"
	ScopeLevelRealm     ScopeLevel = "realm"
	ScopeLevelFormation ScopeLevel = "formation"
	ScopeLevelCell      ScopeLevel = "cell"
)

// KnowledgeScope pins a KnowledgeGraph to a level and the id within it.
type KnowledgeScope struct {
	// +kubebuilder:validation:Enum=platform;realm;formation;cell
	// +kubebuilder:validation:Required
	Level ScopeLevel `json:"level"`
	// +kubebuilder:validation:Required
	ID string `json:"id"`
}

// RetentionSpec bounds the facts a KnowledgeGraph retains.
type RetentionSpec struct {
	// +optional
	MaxFacts int `json:"maxFacts,omitempty"`
	// +optional
	TTLDays int `json:"ttlDays,omitempty"`
}

// KnowledgeGraphSpec is the declared desired state of a KnowledgeGraph.
type KnowledgeGraphSpec struct {
	// +kubebuilder:validation:Required
	Scope KnowledgeScope `json:"scope"`

	// Dedicated requests a standalone backing Pod/Service rather than a
	// shared logical database within the platform store.
	// +optional
	Dedicated bool `json:"dedicated,omitempty"`

	// Inherit controls whether facts are visible from the parent chain.
	// +optional
	Inherit bool `json:"inherit,omitempty"`

	// ParentRef names the parent KnowledgeGraph this one inherits from.
	// +optional
	ParentRef string `json:"parentRef,omitempty"`

	// +optional
	Retention *RetentionSpec `json:"retention,omitempty"`

	// +optional
	Resources *ResourceRequirements `json:"resources,omitempty"`
}

// KnowledgeGraphStatus is the observed state of a KnowledgeGraph.
type KnowledgeGraphStatus struct {
	// +kubebuilder:validation:Enum=Pending;Ready;Failed
	// +optional
	Phase KnowledgeGraphPhase `json:"phase,omitempty"`
	// +optional
	Database string `json:"database,omitempty"`
	// +optional
	Endpoint string `json:"endpoint,omitempty"`
	// ParentChain is the ordered list of ancestor KnowledgeGraph names,
	// nearest parent first; empty when ParentRef is absent.
	// +optional
	ParentChain []string `json:"parentChain,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Scope",type=string,JSONPath=`.spec.scope.level`
// +kubebuilder:printcolumn:name="Dedicated",type=boolean,JSONPath=`.spec.dedicated`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// KnowledgeGraph is the Schema for the knowledgegraphs API.
type KnowledgeGraph struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KnowledgeGraphSpec   `json:"spec,omitempty"`
	Status KnowledgeGraphStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KnowledgeGraphList contains a list of KnowledgeGraph.
type KnowledgeGraphList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KnowledgeGraph `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KnowledgeGraph{}, &KnowledgeGraphList{})
}

func (in *KnowledgeGraph) DeepCopyInto(out *KnowledgeGraph) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *KnowledgeGraph) DeepCopy() *KnowledgeGraph {
	if in == nil {
		return nil
	}
	out := new(KnowledgeGraph)
	in.DeepCopyInto(out)
	return out
}

func (in *KnowledgeGraph) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *KnowledgeGraphList) DeepCopyInto(out *KnowledgeGraphList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]KnowledgeGraph, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *KnowledgeGraphList) DeepCopy() *KnowledgeGraphList {
	if in == nil {
		return nil
	}
	out := new(KnowledgeGraphList)
	in.DeepCopyInto(out)
	return out
}

func (in *KnowledgeGraphList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *RetentionSpec) DeepCopy() *RetentionSpec {
	if in == nil {
		return nil
	}
	out := new(RetentionSpec)
	*out = *in
	return out
}

func (in *KnowledgeGraphSpec) DeepCopyInto(out *KnowledgeGraphSpec) {
	*out = *in
	out.Scope = in.Scope
	out.Retention = in.Retention.DeepCopy()
	out.Resources = in.Resources.DeepCopy()
}

func (in *KnowledgeGraphSpec) DeepCopy() *KnowledgeGraphSpec {
	if in == nil {
		return nil
	}
	out := new(KnowledgeGraphSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *KnowledgeGraphStatus) DeepCopyInto(out *KnowledgeGraphStatus) {
	*out = *in
	if in.ParentChain != nil {
		out.ParentChain = append([]string(nil), in.ParentChain...)
	}
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *KnowledgeGraphStatus) DeepCopy() *KnowledgeGraphStatus {
	if in == nil {
		return nil
	}
	out := new(KnowledgeGraphStatus)
	in.DeepCopyInto(out)
	return out
}
