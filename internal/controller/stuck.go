/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/config"
)

// StuckScore holds the results of behavioral stuck-detection analysis.
type StuckScore struct {
	ToolDiversity   float64 // unique_tools / total_tool_calls (0-1)
	RepeatedPrompts int     // max count of one prompt hash in the window
	StatusStaleMins float64 // minutes since the Cell last reported activity
	Aggregate       float64 // weighted overall score (0-1, higher = more stuck)
	IsStuck         bool
	Reason          string
}

// The agent runtime logs these structured lines per think/act iteration;
// the regexes pick them back out of the pod's JSON log stream.
var (
	reToolCall   = regexp.MustCompile(`"msg":"tool call".*?"tool":"(\w+)"`)
	rePromptHash = regexp.MustCompile(`"msg":"prompt hash".*?"hash":"([a-f0-9]+)"`)
)

const stuckLogTailLines = 200

// collectPodLogs retrieves the tail of the cell container's logs.
func (r *CellReconciler) collectPodLogs(ctx context.Context, namespace, podName string) string {
	if r.Clientset == nil {
		return ""
	}

	tailLines := int64(stuckLogTailLines)
	req := r.Clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: "cell",
		TailLines: &tailLines,
	})

	stream, err := req.Stream(ctx)
	if err != nil {
		log.FromContext(ctx).V(1).Info("failed to get pod logs", "error", err)
		return ""
	}
	defer func() { _ = stream.Close() }()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, stream); err != nil {
		return ""
	}
	return buf.String()
}

// checkStuckSignals analyses the running Cell's pod logs for behavioral
// signals that the agent may be stuck (looping, repetitive, or stalled),
// combined with status staleness.
func (r *CellReconciler) checkStuckSignals(ctx context.Context, cell *cellmeshv1.Cell, defaults config.ClusterDefaults) StuckScore {
	score := StuckScore{ToolDiversity: 1.0}

	logs := r.collectPodLogs(ctx, cell.Namespace, cell.Status.PodName)

	// Signal 1: tool diversity. Lower diversity = more repetitive
	// behavior = likely stuck.
	toolMatches := reToolCall.FindAllStringSubmatch(logs, -1)
	if len(toolMatches) > 2 {
		toolSet := make(map[string]bool)
		for _, m := range toolMatches {
			toolSet[m[1]] = true
		}
		score.ToolDiversity = float64(len(toolSet)) / float64(len(toolMatches))
	}

	// Signal 2: prompt repetition. The same prompt hash appearing over
	// and over means the loop is going in circles.
	hashMatches := rePromptHash.FindAllStringSubmatch(logs, -1)
	if len(hashMatches) > 1 {
		hashCounts := make(map[string]int)
		for _, m := range hashMatches {
			hashCounts[m[1]]++
		}
		for _, count := range hashCounts {
			if count > score.RepeatedPrompts {
				score.RepeatedPrompts = count
			}
		}
	}

	// Signal 3: status staleness.
	if cell.Status.LastActive != nil {
		score.StatusStaleMins = time.Since(cell.Status.LastActive.Time).Minutes()
	}

	// Weighted combination: tool diversity (40%), prompt repetition
	// (35%), staleness (25%).
	diversityPenalty := 0.0
	if defaults.StuckToolDiversityMin > 0 && score.ToolDiversity < defaults.StuckToolDiversityMin {
		diversityPenalty = (defaults.StuckToolDiversityMin - score.ToolDiversity) / defaults.StuckToolDiversityMin
	}

	repetitionPenalty := 0.0
	if defaults.StuckMaxRepeatedPrompts > 0 && score.RepeatedPrompts > defaults.StuckMaxRepeatedPrompts {
		repetitionPenalty = float64(score.RepeatedPrompts-defaults.StuckMaxRepeatedPrompts) /
			float64(defaults.StuckMaxRepeatedPrompts)
		if repetitionPenalty > 1.0 {
			repetitionPenalty = 1.0
		}
	}

	stalenessPenalty := 0.0
	if defaults.StuckStaleMinutes > 0 && score.StatusStaleMins > float64(defaults.StuckStaleMinutes) {
		stalenessPenalty = (score.StatusStaleMins - float64(defaults.StuckStaleMinutes)) /
			float64(defaults.StuckStaleMinutes)
		if stalenessPenalty > 1.0 {
			stalenessPenalty = 1.0
		}
	}

	score.Aggregate = 0.40*diversityPenalty + 0.35*repetitionPenalty + 0.25*stalenessPenalty

	if score.Aggregate >= 0.5 {
		score.IsStuck = true
		var reasons []string
		if diversityPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("low tool diversity (%.2f < %.2f)", score.ToolDiversity, defaults.StuckToolDiversityMin))
		}
		if repetitionPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("repeated prompts (%d > %d)", score.RepeatedPrompts, defaults.StuckMaxRepeatedPrompts))
		}
		if stalenessPenalty > 0 {
			reasons = append(reasons, fmt.Sprintf("stale progress (%.0fm > %dm)", score.StatusStaleMins, defaults.StuckStaleMinutes))
		}
		score.Reason = strings.Join(reasons, "; ")
	}

	return score
}
