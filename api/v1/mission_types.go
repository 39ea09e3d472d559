/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// MissionPhase is the observed lifecycle phase of a Mission.
type MissionPhase string

const (
	MissionPhasePending   MissionPhase = "Pending"
	MissionPhaseRunning   MissionPhase = "Running"
	MissionPhaseInReview  MissionPhase = "InReview"
	MissionPhaseCompleted MissionPhase = "Completed"
	MissionPhaseFailed    MissionPhase = "Failed"
)

// CompletionCheckKind names the kind of completion check a Mission evaluates.
type CompletionCheckKind string

const (
	CompletionCheckLLMJudge   CompletionCheckKind = "llm_judge"
	CompletionCheckToolOutput CompletionCheckKind = "tool_output"
	CompletionCheckMetric     CompletionCheckKind = "metric"
	CompletionCheckHuman      CompletionCheckKind = "human"
)

// EntrypointRef names the Cell or Formation a Mission is pinned to.
type EntrypointRef struct {
	// +optional
	CellRef string `json:"cellRef,omitempty"`
	// +optional
	FormationRef string `json:"formationRef,omitempty"`
}

// CompletionCheckSpec declares one condition evaluated on the Mission's interval.
type CompletionCheckSpec struct {
	// +kubebuilder:validation:Enum=llm_judge;tool_output;metric;human
	// +kubebuilder:validation:Required
	Type CompletionCheckKind `json:"type"`
	// Name identifies this check in status.checkResults.
	// +kubebuilder:validation:Required
	Name string `json:"name"`
	// JudgePrompt is used by llm_judge checks.
	// +optional
	JudgePrompt string `json:"judgePrompt,omitempty"`
	// ToolName and Pattern are used by tool_output checks: match the named
	// tool's last result against the regex Pattern.
	// +optional
	ToolName string `json:"toolName,omitempty"`
	// +optional
	Pattern string `json:"pattern,omitempty"`
	// MetricName and Threshold are used by metric checks.
	// +optional
	MetricName string `json:"metricName,omitempty"`
	// +optional
	Threshold string `json:"threshold,omitempty"`
	// RequireSignoff marks a check that forces InReview on success rather
	// than contributing directly to Completed.
	// +optional
	RequireSignoff bool `json:"requireSignoff,omitempty"`
}

// MissionBudget bounds spend across the Mission's entrypoint tree.
type MissionBudget struct {
	// +optional
	MaxTotalCost string `json:"maxTotalCost,omitempty"`
}

// ReviewSpec configures the human review step for InReview missions.
type ReviewSpec struct {
	// +optional
	Reviewers []string `json:"reviewers,omitempty"`
	// +optional
	TimeoutMinutes int `json:"timeoutMinutes,omitempty"`
}

// MissionSpec is the declared desired state of a Mission.
type MissionSpec struct {
	// +kubebuilder:validation:Required
	Entrypoint EntrypointRef `json:"entrypoint"`

	// +optional
	CompletionChecks []CompletionCheckSpec `json:"completionChecks,omitempty"`

	// +optional
	Budget *MissionBudget `json:"budget,omitempty"`

	// +optional
	Review *ReviewSpec `json:"review,omitempty"`

	// CheckIntervalSeconds sets the cadence completion checks run on.
	// +kubebuilder:default=30
	// +optional
	CheckIntervalSeconds int `json:"checkIntervalSeconds,omitempty"`
}

// CheckResult records the last outcome of one named completion check.
type CheckResult struct {
	Name      string      `json:"name"`
	Passed    bool        `json:"passed"`
	Message   string      `json:"message,omitempty"`
	CheckedAt metav1.Time `json:"checkedAt"`
}

// MissionStatus is the observed state of a Mission.
type MissionStatus struct {
	// +kubebuilder:validation:Enum=Pending;Running;InReview;Completed;Failed
	// +optional
	Phase MissionPhase `json:"phase,omitempty"`
	// +optional
	CheckResults []CheckResult `json:"checkResults,omitempty"`
	// History retains prior check results for audit, newest last.
	// +optional
	History []CheckResult `json:"history,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Mission is the Schema for the missions API.
type Mission struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   MissionSpec   `json:"spec,omitempty"`
	Status MissionStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// MissionList contains a list of Mission.
type MissionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Mission `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Mission{}, &MissionList{})
}

func (in *Mission) DeepCopyInto(out *Mission) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

func (in *Mission) DeepCopy() *Mission {
	if in == nil {
		return nil
	}
	out := new(Mission)
	in.DeepCopyInto(out)
	return out
}

func (in *Mission) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *MissionList) DeepCopyInto(out *MissionList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Mission, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *MissionList) DeepCopy() *MissionList {
	if in == nil {
		return nil
	}
	out := new(MissionList)
	in.DeepCopyInto(out)
	return out
}

func (in *MissionList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func (in *MissionBudget) DeepCopy() *MissionBudget {
	if in == nil {
		return nil
	}
	out := new(MissionBudget)
	*out = *in
	return out
}

func (in *ReviewSpec) DeepCopyInto(out *ReviewSpec) {
	*out = *in
	if in.Reviewers != nil {
		out.Reviewers = append([]string(nil), in.Reviewers...)
	}
}

func (in *ReviewSpec) DeepCopy() *ReviewSpec {
	if in == nil {
		return nil
	}
	out := new(ReviewSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *MissionSpec) DeepCopyInto(out *MissionSpec) {
	*out = *in
	out.Entrypoint = in.Entrypoint
	if in.CompletionChecks != nil {
		out.CompletionChecks = append([]CompletionCheckSpec(nil), in.CompletionChecks...)
	}
	out.Budget = in.Budget.DeepCopy()
	if in.Review != nil {
		out.Review = in.Review.DeepCopy()
	}
}

func (in *MissionSpec) DeepCopy() *MissionSpec {
	if in == nil {
		return nil
	}
	out := new(MissionSpec)
	in.DeepCopyInto(out)
	return out
}

func (in *CheckResult) DeepCopyInto(out *CheckResult) {
	*out = *in
	in.CheckedAt.DeepCopyInto(&out.CheckedAt)
}

func (in *MissionStatus) DeepCopyInto(out *MissionStatus) {
	*out = *in
	if in.CheckResults != nil {
		out.CheckResults = make([]CheckResult, len(in.CheckResults))
		for i := range in.CheckResults {
			in.CheckResults[i].DeepCopyInto(&out.CheckResults[i])
		}
	}
	if in.History != nil {
		out.History = make([]CheckResult, len(in.History))
		for i := range in.History {
			in.History[i].DeepCopyInto(&out.History[i])
		}
	}
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func (in *MissionStatus) DeepCopy() *MissionStatus {
	if in == nil {
		return nil
	}
	out := new(MissionStatus)
	in.DeepCopyInto(out)
	return out
}
