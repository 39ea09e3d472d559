/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/cache"
	"github.com/kais-io/cellmesh/internal/metrics"
	"github.com/kais-io/cellmesh/internal/mind"
	"github.com/kais-io/cellmesh/internal/store"
)

// MissionReconciler reconciles a Mission object: it drives the
// Pending -> Running -> InReview -> Completed|Failed state machine,
// evaluating each CompletionCheckSpec on the mission's configured
// interval.
type MissionReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// Store backs "metric" completion checks by reading usage aggregates
	// out of the event store. Nil skips metric sampling.
	Store store.EventStore
	// Judge backs "llm_judge" completion checks. Nil leaves the check
	// permanently pending.
	Judge mind.Mind
	// JudgeCache deduplicates identical judge questions within a TTL
	// window.
	JudgeCache *cache.ResultCache
}

// +kubebuilder:rbac:groups=kais.io,resources=missions,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=kais.io,resources=missions/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=kais.io,resources=missions/finalizers,verbs=update
// +kubebuilder:rbac:groups=kais.io,resources=cells,verbs=get;list;watch
// +kubebuilder:rbac:groups=kais.io,resources=formations,verbs=get;list;watch

func (r *MissionReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	mission := &cellmeshv1.Mission{}
	if err := r.Get(ctx, req.NamespacedName, mission); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !mission.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, mission)
	}

	if !controllerutil.ContainsFinalizer(mission, finalizerName) {
		controllerutil.AddFinalizer(mission, finalizerName)
		if err := r.Update(ctx, mission); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	interval := time.Duration(mission.Spec.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	switch mission.Status.Phase {
	case "", cellmeshv1.MissionPhasePending:
		mission.Status.Phase = cellmeshv1.MissionPhaseRunning
		metrics.MissionsTotal.WithLabelValues(string(cellmeshv1.MissionPhaseRunning), mission.Namespace).Inc()
		return ctrl.Result{RequeueAfter: interval}, r.Status().Update(ctx, mission)

	case cellmeshv1.MissionPhaseRunning:
		if overrun, message := r.budgetOverrun(ctx, mission); overrun {
			mission.Status.Phase = cellmeshv1.MissionPhaseFailed
			mission.Status.Message = message
			metrics.MissionsTotal.WithLabelValues(string(cellmeshv1.MissionPhaseFailed), mission.Namespace).Inc()
			return ctrl.Result{}, r.Status().Update(ctx, mission)
		}

		results, allPassed, needsSignoff := r.evaluateChecks(ctx, mission)
		mission.Status.CheckResults = results
		mission.Status.History = append(mission.Status.History, results...)

		switch {
		case allPassed && needsSignoff:
			mission.Status.Phase = cellmeshv1.MissionPhaseInReview
		case allPassed:
			mission.Status.Phase = cellmeshv1.MissionPhaseCompleted
		}
		if mission.Status.Phase != cellmeshv1.MissionPhaseRunning {
			metrics.MissionsTotal.WithLabelValues(string(mission.Status.Phase), mission.Namespace).Inc()
		}
		if err := r.Status().Update(ctx, mission); err != nil {
			return ctrl.Result{}, err
		}
		if mission.Status.Phase == cellmeshv1.MissionPhaseRunning {
			return ctrl.Result{RequeueAfter: interval}, nil
		}
		return ctrl.Result{}, nil

	case cellmeshv1.MissionPhaseInReview:
		switch decision, decidedBy := reviewDecision(mission); decision {
		case "approved":
			mission.Status.Phase = cellmeshv1.MissionPhaseCompleted
			mission.Status.Message = "approved by " + decidedBy
			metrics.MissionsTotal.WithLabelValues(string(cellmeshv1.MissionPhaseCompleted), mission.Namespace).Inc()
			return ctrl.Result{}, r.Status().Update(ctx, mission)
		case "rejected":
			mission.Status.Phase = cellmeshv1.MissionPhaseFailed
			mission.Status.Message = "rejected by " + decidedBy
			metrics.MissionsTotal.WithLabelValues(string(cellmeshv1.MissionPhaseFailed), mission.Namespace).Inc()
			return ctrl.Result{}, r.Status().Update(ctx, mission)
		}
		if r.reviewTimedOut(mission) {
			logger.Info("mission review timed out, failing", "mission", mission.Name)
			mission.Status.Phase = cellmeshv1.MissionPhaseFailed
			mission.Status.Message = "review timed out"
			metrics.MissionsTotal.WithLabelValues(string(cellmeshv1.MissionPhaseFailed), mission.Namespace).Inc()
			return ctrl.Result{}, r.Status().Update(ctx, mission)
		}
		return ctrl.Result{RequeueAfter: interval}, nil

	default:
		return ctrl.Result{}, nil
	}
}

// Review sign-off is recorded by annotating the Mission, so it works
// from kubectl without any extra API surface:
//
//	kubectl annotate mission build-api cellmesh.kais.io/review-decision=approved \
//	    cellmesh.kais.io/review-decided-by=alex
const (
	reviewDecisionAnnotation  = "cellmesh.kais.io/review-decision"
	reviewDecidedByAnnotation = "cellmesh.kais.io/review-decided-by"
)

// reviewDecision reads the reviewer's verdict off the Mission's
// annotations; decision is "" while undecided.
func reviewDecision(mission *cellmeshv1.Mission) (decision, decidedBy string) {
	ann := mission.GetAnnotations()
	if ann == nil {
		return "", ""
	}
	decidedBy = ann[reviewDecidedByAnnotation]
	if decidedBy == "" {
		decidedBy = "unknown"
	}
	return ann[reviewDecisionAnnotation], decidedBy
}

func (r *MissionReconciler) reviewTimedOut(mission *cellmeshv1.Mission) bool {
	if mission.Spec.Review == nil || mission.Spec.Review.TimeoutMinutes <= 0 {
		return false
	}
	if len(mission.Status.CheckResults) == 0 {
		return false
	}
	last := mission.Status.CheckResults[len(mission.Status.CheckResults)-1].CheckedAt
	return time.Since(last.Time) > time.Duration(mission.Spec.Review.TimeoutMinutes)*time.Minute
}

// budgetOverrun reports whether the Mission's entrypoint Cell has spent
// past spec.budget.maxTotalCost. A Mission without a budget, or one
// pinned to a Formation rather than a single Cell, never overruns here.
func (r *MissionReconciler) budgetOverrun(ctx context.Context, mission *cellmeshv1.Mission) (bool, string) {
	if mission.Spec.Budget == nil || mission.Spec.Budget.MaxTotalCost == "" {
		return false, ""
	}
	cellName := mission.Spec.Entrypoint.CellRef
	if cellName == "" || r.Store == nil {
		return false, ""
	}
	maxCost, err := strconv.ParseFloat(mission.Spec.Budget.MaxTotalCost, 64)
	if err != nil {
		return false, ""
	}
	summary, err := r.Store.UsageSummary(ctx, cellName)
	if err != nil {
		return false, ""
	}
	if summary.TotalCost > maxCost {
		return true, fmt.Sprintf("budget overrun: spent %.4f exceeds maxTotalCost %.4f", summary.TotalCost, maxCost)
	}
	return false, ""
}

// evaluateChecks runs every CompletionCheckSpec and reports whether every
// check passed, plus whether any passing check requires human signoff
// before the Mission can move to Completed.
func (r *MissionReconciler) evaluateChecks(ctx context.Context, mission *cellmeshv1.Mission) (results []cellmeshv1.CheckResult, allPassed, needsSignoff bool) {
	allPassed = true
	now := metav1.Now()
	for _, check := range mission.Spec.CompletionChecks {
		passed, message := r.evaluateOne(ctx, mission, check)
		results = append(results, cellmeshv1.CheckResult{
			Name: check.Name, Passed: passed, Message: message, CheckedAt: now,
		})
		if !passed {
			allPassed = false
			continue
		}
		if check.RequireSignoff {
			needsSignoff = true
		}
	}
	return results, allPassed, needsSignoff
}

func (r *MissionReconciler) evaluateOne(ctx context.Context, mission *cellmeshv1.Mission, check cellmeshv1.CompletionCheckSpec) (bool, string) {
	switch check.Type {
	case cellmeshv1.CompletionCheckToolOutput:
		return r.checkToolOutput(ctx, mission, check)
	case cellmeshv1.CompletionCheckMetric:
		return r.checkMetric(ctx, mission, check)
	case cellmeshv1.CompletionCheckLLMJudge:
		return r.checkLLMJudge(ctx, mission, check)
	case cellmeshv1.CompletionCheckHuman:
		if decision, decidedBy := reviewDecision(mission); decision == "approved" {
			return true, "approved by " + decidedBy
		}
		return false, "awaiting human review"
	default:
		return false, "unknown check type"
	}
}

func (r *MissionReconciler) checkToolOutput(ctx context.Context, mission *cellmeshv1.Mission, check cellmeshv1.CompletionCheckSpec) (bool, string) {
	cellName := mission.Spec.Entrypoint.CellRef
	if cellName == "" {
		return false, "tool_output check requires entrypoint.cellRef"
	}
	cell := &cellmeshv1.Cell{}
	if err := r.Get(ctx, client.ObjectKey{Namespace: mission.Namespace, Name: cellName}, cell); err != nil {
		return false, "cell not found: " + err.Error()
	}
	if check.Pattern == "" {
		return false, "tool_output check requires a pattern"
	}
	re, err := regexp.Compile(check.Pattern)
	if err != nil {
		return false, "invalid pattern: " + err.Error()
	}
	if re.MatchString(cell.Status.Message) {
		return true, "matched"
	}
	return false, "no match"
}

func (r *MissionReconciler) checkMetric(ctx context.Context, mission *cellmeshv1.Mission, check cellmeshv1.CompletionCheckSpec) (bool, string) {
	if check.Threshold == "" {
		return false, "metric check requires a threshold"
	}
	threshold, err := strconv.ParseFloat(check.Threshold, 64)
	if err != nil {
		return false, "invalid threshold: " + err.Error()
	}
	if r.Store == nil {
		return false, "metric sampling not wired: " + check.MetricName
	}
	cellName := mission.Spec.Entrypoint.CellRef
	if cellName == "" {
		return false, "metric check requires entrypoint.cellRef"
	}
	summary, err := r.Store.UsageSummary(ctx, cellName)
	if err != nil {
		return false, "usage summary query failed: " + err.Error()
	}
	var sample float64
	switch check.MetricName {
	case "total_cost":
		sample = summary.TotalCost
	case "total_tokens":
		sample = float64(summary.TotalTokens)
	default:
		return false, "unknown metric: " + check.MetricName
	}
	if sample >= threshold {
		return true, fmt.Sprintf("%s=%.4f >= %.4f", check.MetricName, sample, threshold)
	}
	return false, fmt.Sprintf("%s=%.4f < %.4f", check.MetricName, sample, threshold)
}

// checkLLMJudge asks r.Judge to verdict on check.JudgePrompt, caching the
// verdict by (mission, check, prompt) so a re-reconcile within the TTL
// window doesn't re-ask an identical question.
func (r *MissionReconciler) checkLLMJudge(ctx context.Context, mission *cellmeshv1.Mission, check cellmeshv1.CompletionCheckSpec) (bool, string) {
	if r.Judge == nil {
		return false, "awaiting llm_judge verdict"
	}
	if check.JudgePrompt == "" {
		return false, "llm_judge check requires a judgePrompt"
	}

	var cacheKey string
	if r.JudgeCache != nil {
		cacheKey = cache.Key(mission.Namespace, mission.Name, check.Name, check.JudgePrompt)
		if cached, ok := r.JudgeCache.Get(cacheKey); ok {
			return cached == "pass", "cached: " + cached
		}
	}

	out, err := r.Judge.Think(ctx, mind.ThinkInput{
		Messages: []mind.Message{
			{Role: mind.RoleSystem, Content: "Answer with exactly one word: pass or fail."},
			{Role: mind.RoleUser, Content: check.JudgePrompt},
		},
	})
	if err != nil {
		return false, "judge call failed: " + err.Error()
	}

	verdict := "fail"
	if strings.Contains(strings.ToLower(out.Content), "pass") {
		verdict = "pass"
	}
	if r.JudgeCache != nil {
		r.JudgeCache.Put(cacheKey, verdict)
	}
	return verdict == "pass", "judge: " + out.Content
}

func (r *MissionReconciler) handleDeletion(ctx context.Context, mission *cellmeshv1.Mission) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(mission, finalizerName) {
		return ctrl.Result{}, nil
	}
	controllerutil.RemoveFinalizer(mission, finalizerName)
	if err := r.Update(ctx, mission); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *MissionReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&cellmeshv1.Mission{}).
		Complete(r)
}
