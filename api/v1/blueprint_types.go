/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// ParamKind names the type of a Blueprint parameter.
type ParamKind string

const (
	ParamKindString  ParamKind = "string"
	ParamKindInteger ParamKind = "integer"
	ParamKindNumber  ParamKind = "number"
	ParamKindBoolean ParamKind = "boolean"
	ParamKindEnum    ParamKind = "enum"
)

// ParameterSpec declares one templated variable of a Blueprint.
type ParameterSpec struct {
	// +kubebuilder:validation:Required
	Name string `json:"name"`
	// +kubebuilder:validation:Enum=string;integer;number;boolean;enum
	// +kubebuilder:validation:Required
	Type ParamKind `json:"type"`
	// Values lists the allowed values for an enum-typed parameter.
	// +optional
	Values []string `json:"values,omitempty"`
	// Default is the JSON-encoded default value, applied when the
	// parameter is omitted at render time.
	// +optional
	Default *string `json:"default,omitempty"`
	// +optional
	Required bool `json:"required,omitempty"`
}

// BlueprintSpec is the declared desired state of a Blueprint.
type BlueprintSpec struct {
	// +optional
	Parameters []ParameterSpec `json:"parameters,omitempty"`

	// Formation is an opaque JSON tree template containing "{{ var }}" and
	// "{% if ... %} ... {% endif %}" tokens in string leaves, rendered by
	// the Blueprint Renderer into a concrete FormationSpec.
	// +kubebuilder:pruning:PreserveUnknownFields
	// +kubebuilder:validation:Required
	Formation runtime.RawExtension `json:"formation"`
}

// BlueprintVersion is one append-only entry in status.versions.
type BlueprintVersion struct {
	Version   int         `json:"version"`
	CreatedAt metav1.Time `json:"createdAt"`
	// +optional
	Changes string `json:"changes,omitempty"`
}

// BlueprintStatus is the observed state of a Blueprint.
type BlueprintStatus struct {
	// +optional
	Versions []BlueprintVersion `json:"versions,omitempty"`
	// +optional
	UsageCount int64 `json:"usageCount,omitempty"`
	// +optional
	LastUsed *metav1.Time `json:"lastUsed,omitempty"`
	// +optional
	AvgSuccessRate string `json:"avgSuccessRate,omitempty"`
	// LastSpecHash is the content hash of spec as of the last reconcile,
	// used to detect changes that warrant a new version entry.
	// +optional
	LastSpecHash string `json:"lastSpecHash,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Version",type=integer,JSONPath=`.status.versions[-1:].version`
// +kubebuilder:printcolumn:name="Usage",type=integer,JSONPath=`.status.usageCount`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Blueprint is the Schema for the blueprints API.
type Blueprint struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   BlueprintSpec   `json:"spec,omitempty"`
	Status BlueprintStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// BlueprintList contains a list of Blueprint.
type BlueprintList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Blueprint `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Blueprint{}, &BlueprintList{})
}

func (in *Blueprint) DeepCopyInto(out *Blueprint) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Blueprint) DeepCopy() *Blueprint {
	if in == nil {
		return nil
	}
	out := new(Blueprint)
	in.DeepCopyInto(out)
	return out
}

func (in *Blueprint) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *BlueprintList) DeepCopyInto(out *BlueprintList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Blueprint, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *BlueprintList) DeepCopy() *BlueprintList {
	if in == nil {
		return nil
	}
	out := new(BlueprintList)
	in.DeepCopyInto(out)
	return out
}

func (in *BlueprintList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *ParameterSpec) DeepCopyInto(out *ParameterSpec) {
	*out = *in
	if in.Values != nil {
		out.Values = append([]string(nil), in.Values...)
	}
	if in.Default != nil {
		v := *in.Default
		out.Default = &v
	}
}

func (in *BlueprintSpec) DeepCopyInto(out *BlueprintSpec) {
	*out = *in
	if in.Parameters != nil {
		out.Parameters = make([]ParameterSpec, len(in.Parameters))
		for i := range in.Parameters {
			in.Parameters[i].DeepCopyInto(&out.Parameters[i])
		}
	}
	in.Formation.DeepCopyInto(&out.Formation)
}

func (in *BlueprintSpec) DeepCopy() *BlueprintSpec {
	if in == nil {
		return nil
	}
	out := new(BlueprintSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *BlueprintVersion) DeepCopyInto(out *BlueprintVersion) {
	*out = *in
	in.CreatedAt.DeepCopyInto(&out.CreatedAt)
}

func (in *BlueprintStatus) DeepCopyInto(out *BlueprintStatus) {
	*out = *in
	if in.Versions != nil {
		out.Versions = make([]BlueprintVersion, len(in.Versions))
		for i := range in.Versions {
			in.Versions[i].DeepCopyInto(&out.Versions[i])
		}
	}
	if in.LastUsed != nil {
		t := in.LastUsed.DeepCopy()
		out.LastUsed = t
	}
}

func (in *BlueprintStatus) DeepCopy() *BlueprintStatus {
	if in == nil {
		return nil
	}
	out := new(BlueprintStatus)
	in.DeepCopyInto(out)
	return out
}
