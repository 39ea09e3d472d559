/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// ChannelPhase is the observed lifecycle phase of a Channel.
type ChannelPhase string

const (
	ChannelPhaseActive ChannelPhase = "Active"
	ChannelPhasePaused ChannelPhase = "Paused"
	ChannelPhaseError  ChannelPhase = "Error"
)

// ChannelSpec is the declared desired state of a Channel. A Channel
// subscribes two or more Formations to a shared subject.
type ChannelSpec struct {
	// +kubebuilder:validation:MinItems=0
	// +optional
	Formations []string `json:"formations,omitempty"`

	// +kubebuilder:default=65536
	// +optional
	MaxMessageSize int `json:"maxMessageSize,omitempty"`

	// +kubebuilder:default=1440
	// +optional
	RetentionMinutes int `json:"retentionMinutes,omitempty"`

	// Paused, when set, moves status.phase to Paused without tearing the
	// Channel down; while the phase is Paused the controller leaves every
	// status field untouched. Clearing Paused does not by itself move the
	// phase off Paused.
	// +optional
	Paused bool `json:"paused,omitempty"`
}

// ChannelStatus is the observed state of a Channel.
type ChannelStatus struct {
	// +kubebuilder:validation:Enum=Active;Paused;Error
	// +optional
	Phase ChannelPhase `json:"phase,omitempty"`
	// +optional
	MessageCount int64 `json:"messageCount,omitempty"`
	// +optional
	SubscriberCount int `json:"subscriberCount,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Subscribers",type=integer,JSONPath=`.status.subscriberCount`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Channel is the Schema for the channels API.
type Channel struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ChannelSpec   `json:"spec,omitempty"`
	Status ChannelStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ChannelList contains a list of Channel.
type ChannelList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Channel `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Channel{}, &ChannelList{})
}

func (in *Channel) DeepCopyInto(out *Channel) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Channel) DeepCopy() *Channel {
	if in == nil {
		return nil
	}
	out := new(Channel)
	in.DeepCopyInto(out)
	return out
}

func (in *Channel) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *ChannelList) DeepCopyInto(out *ChannelList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Channel, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *ChannelList) DeepCopy() *ChannelList {
	if in == nil {
		return nil
	}
	out := new(ChannelList)
	in.DeepCopyInto(out)
	return out
}

func (in *ChannelList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *ChannelSpec) DeepCopyInto(out *ChannelSpec) {
	*out = *in
	if in.Formations != nil {
		out.Formations = append([]string(nil), in.Formations...)
	}
}

func (in *ChannelSpec) DeepCopy() *ChannelSpec {
	if in == nil {
		return nil
	}
	out := new(ChannelSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *ChannelStatus) DeepCopyInto(out *ChannelStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *ChannelStatus) DeepCopy() *ChannelStatus {
	if in == nil {
		return nil
	}
	out := new(ChannelStatus)
	in.DeepCopyInto(out)
	return out
}
