/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// FormationPhase is the observed lifecycle phase of a Formation.
type FormationPhase string

const (
	FormationPhasePending FormationPhase = "Pending"
	FormationPhaseRunning FormationPhase = "Running"
	FormationPhaseFailed  FormationPhase = "Failed"
)

// CellDecl declares one named group of replica Cells within a Formation.
// Concrete Cells are materialised as "<name>-<i>" for i in [0, replicas).
type CellDecl struct {
	// +kubebuilder:validation:Required
	Name string `json:"name"`
	// +kubebuilder:default=1
	// +optional
	Replicas int `json:"replicas,omitempty"`
	// +kubebuilder:validation:Required
	Spec CellSpec `json:"spec"`
}

// TopologySpec names the Formation's communication topology and its parameters.
type TopologySpec struct {
	// +kubebuilder:validation:Enum=full_mesh;star;ring;hierarchy;blackboard;broadcast;route
	// +kubebuilder:validation:Required
	Kind TopologyKind `json:"kind"`
	// Hub names the hub cell declaration for star topology.
	// +optional
	Hub string `json:"hub,omitempty"`
	// Root names the root cell declaration for hierarchy topology.
	// +optional
	Root string `json:"root,omitempty"`
	// Channel names the shared sink for broadcast topology.
	// +optional
	Channel string `json:"channel,omitempty"`
	// Table is a verbatim route table for the "route" topology: concrete
	// cell name -> list of allowed target cell names.
	// +optional
	Table map[string][]string `json:"table,omitempty"`
}

// FormationBudget bounds total spend across every Cell in the Formation.
type FormationBudget struct {
	// +optional
	MaxTotalCost string `json:"maxTotalCost,omitempty"`
}

// FormationSpec is the declared desired state of a Formation.
type FormationSpec struct {
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinItems=1
	Cells []CellDecl `json:"cells"`

	// +kubebuilder:validation:Required
	Topology TopologySpec `json:"topology"`

	// +optional
	Budget *FormationBudget `json:"budget,omitempty"`
}

// FormationStatus is the observed state of a Formation.
type FormationStatus struct {
	// +kubebuilder:validation:Enum=Pending;Running;Failed
	// +optional
	Phase FormationPhase `json:"phase,omitempty"`
	// +optional
	TotalCells int `json:"totalCells,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Topology",type=string,JSONPath=`.spec.topology.kind`
// +kubebuilder:printcolumn:name="Cells",type=integer,JSONPath=`.status.totalCells`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Formation is the Schema for the formations API.
type Formation struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   FormationSpec   `json:"spec,omitempty"`
	Status FormationStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// FormationList contains a list of Formation.
type FormationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Formation `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Formation{}, &FormationList{})
}

func (in *Formation) DeepCopyInto(out *Formation) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Formation) DeepCopy() *Formation {
	if in == nil {
		return nil
	}
	out := new(Formation)
	in.DeepCopyInto(out)
	return out
}

func (in *Formation) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *FormationList) DeepCopyInto(out *FormationList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Formation, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *FormationList) DeepCopy() *FormationList {
	if in == nil {
		return nil
	}
	out := new(FormationList)
	in.DeepCopyInto(out)
	return out
}

func (in *FormationList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *CellDecl) DeepCopyInto(out *CellDecl) {
	*out = *in
	in.Spec.DeepCopyInto(&out.Spec)
}

func (in *TopologySpec) DeepCopyInto(out *TopologySpec) {
	*out = *in
	if in.Table != nil {
		out.Table = make(map[string][]string, len(in.Table))
		for k, v := range in.Table {
			out.Table[k] = append([]string(nil), v...)
		}
	}
}

func (in *FormationBudget) DeepCopy() *FormationBudget {
	if in == nil {
		return nil
	}
	out := new(FormationBudget)
	*out = *in
	return out
}

func (in *FormationSpec) DeepCopyInto(out *FormationSpec) {
	*out = *in
	if in.Cells != nil {
		out.Cells = make([]CellDecl, len(in.Cells))
		for i := range in.Cells {
			in.Cells[i].DeepCopyInto(&out.Cells[i])
		}
	}
	in.Topology.DeepCopyInto(&out.Topology)
	out.Budget = in.Budget.DeepCopy()
}

func (in *FormationSpec) DeepCopy() *FormationSpec {
	if in == nil {
		return nil
	}
	out := new(FormationSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *FormationStatus) DeepCopyInto(out *FormationStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *FormationStatus) DeepCopy() *FormationStatus {
	if in == nil {
		return nil
	}
	out := new(FormationStatus)
	in.DeepCopyInto(out)
	return out
}
