/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// CellPhase is the observed lifecycle phase of a Cell.
type CellPhase string

const (
	CellPhasePending     CellPhase = "Pending"
	CellPhaseRunning     CellPhase = "Running"
	CellPhaseCompleted   CellPhase = "Completed"
	CellPhaseFailed      CellPhase = "Failed"
	CellPhaseTerminating CellPhase = "Terminating"
)

// CellSpec is the declared desired state of a Cell.
type CellSpec struct {
	// Mind declares the language-model capability this Cell thinks with.
	// +kubebuilder:validation:Required
	Mind MindSpec `json:"mind"`

	// Tools lists named tools (from the cluster tool registry) available to this Cell.
	// +optional
	Tools []string `json:"tools,omitempty"`

	// Resources bounds the Cell's compute/budget footprint.
	// +optional
	Resources *ResourceRequirements `json:"resources,omitempty"`

	// Budget caps token/cost spend; see BudgetTracker.
	// +optional
	Budget *BudgetSpec `json:"budget,omitempty"`

	// ParentRef is the name of the parent Cell, set when this Cell was
	// created via spawn_cell. Empty for root Cells.
	// +optional
	ParentRef string `json:"parentRef,omitempty"`

	// Recursion bounds depth/descendants/spawn policy for this Cell's
	// own children. Only meaningful if the Cell can spawn (i.e. has the
	// spawn_cell tool and canSpawnChildren was set true at creation).
	// +optional
	Recursion *RecursionSpec `json:"recursion,omitempty"`
}

// CellStatus is the observed state of a Cell.
type CellStatus struct {
	// +kubebuilder:validation:Enum=Pending;Running;Completed;Failed;Terminating
	// +optional
	Phase CellPhase `json:"phase,omitempty"`

	// +optional
	PodName string `json:"podName,omitempty"`

	// TotalCost is the cumulative spend in USD, formatted to 6 decimals.
	// +optional
	TotalCost string `json:"totalCost,omitempty"`

	// +optional
	TotalTokens int64 `json:"totalTokens,omitempty"`

	// +optional
	LastActive *metav1.Time `json:"lastActive,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Provider",type=string,JSONPath=`.spec.mind.provider`
// +kubebuilder:printcolumn:name="Model",type=string,JSONPath=`.spec.mind.model`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Cell is the Schema for the cells API.
type Cell struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   CellSpec   `json:"spec,omitempty"`
	Status CellStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// CellList contains a list of Cell.
type CellList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Cell `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Cell{}, &CellList{})
}

// DeepCopyInto copies the receiver into out.
func (in *Cell) DeepCopyInto(out *Cell) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the receiver.
func (in *Cell) DeepCopy() *Cell {
	if in == nil {
		return nil
	}
	out := new(Cell)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *Cell) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *CellList) DeepCopyInto(out *CellList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Cell, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *CellList) DeepCopy() *CellList {
	if in == nil {
		return nil
	}
	out := new(CellList)
	in.DeepCopyInto(out)
	return out
}

func (in *CellList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *CellSpec) DeepCopyInto(out *CellSpec) {
	*out = *in
	out.Mind = *in.Mind.DeepCopy()
	if in.Tools != nil {
		out.Tools = append([]string(nil), in.Tools...)
	}
	out.Resources = in.Resources.DeepCopy()
	out.Budget = in.Budget.DeepCopy()
	out.Recursion = in.Recursion.DeepCopy()
}

func (in *CellSpec) DeepCopy() *CellSpec {
	if in == nil {
		return nil
	}
	out := new(CellSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *CellStatus) DeepCopyInto(out *CellStatus) {
	*out = *in
	if in.LastActive != nil {
		t := in.LastActive.DeepCopy()
		out.LastActive = t
	}
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *CellStatus) DeepCopy() *CellStatus {
	if in == nil {
		return nil
	}
	out := new(CellStatus)
	in.DeepCopyInto(out)
	return out
}
