/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package controller

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// enforceCellPolicy checks every CellPolicy in namespace against spec.
// Returns an empty string if spec satisfies all policies in scope, or a
// violation description naming the offending policy.
func enforceCellPolicy(ctx context.Context, c client.Client, namespace string, spec cellmeshv1.CellSpec) string {
	policies := &cellmeshv1.CellPolicyList{}
	if err := c.List(ctx, policies, client.InNamespace(namespace)); err != nil {
		log.FromContext(ctx).Error(err, "failed to list CellPolicies", "namespace", namespace)
		return ""
	}
	if len(policies.Items) == 0 {
		return ""
	}

	for _, policy := range policies.Items {
		p := policy.Spec

		if len(p.DeniedTools) > 0 {
			denied := make(map[string]bool, len(p.DeniedTools))
			for _, t := range p.DeniedTools {
				denied[t] = true
			}
			for _, t := range spec.Tools {
				if denied[t] {
					return fmt.Sprintf("tool %q is denied by policy %s", t, policy.Name)
				}
			}
		}

		if len(p.AllowedTools) > 0 {
			allowed := make(map[string]bool, len(p.AllowedTools))
			for _, t := range p.AllowedTools {
				allowed[t] = true
			}
			for _, t := range spec.Tools {
				if !allowed[t] {
					return fmt.Sprintf("tool %q is not allowed by policy %s", t, policy.Name)
				}
			}
		}

		if len(p.AllowedProviders) > 0 {
			matched := false
			for _, pattern := range p.AllowedProviders {
				if ok, _ := path.Match(pattern, spec.Mind.Provider); ok {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Sprintf("provider %q is not allowed by policy %s", spec.Mind.Provider, policy.Name)
			}
		}

		if p.MaxBudget != nil && spec.Budget != nil {
			if p.MaxBudget.MaxTotalCost != "" && spec.Budget.MaxTotalCost != "" {
				policyVal, err1 := strconv.ParseFloat(p.MaxBudget.MaxTotalCost, 64)
				cellVal, err2 := strconv.ParseFloat(spec.Budget.MaxTotalCost, 64)
				if err1 == nil && err2 == nil && cellVal > policyVal {
					return fmt.Sprintf("maxTotalCost %s exceeds policy %s limit of %s",
						spec.Budget.MaxTotalCost, policy.Name, p.MaxBudget.MaxTotalCost)
				}
			}
			if p.MaxBudget.MaxTokensPerTurn != nil && spec.Budget.MaxTokensPerTurn != nil {
				if *spec.Budget.MaxTokensPerTurn > *p.MaxBudget.MaxTokensPerTurn {
					return fmt.Sprintf("maxTokensPerTurn %d exceeds policy %s limit of %d",
						*spec.Budget.MaxTokensPerTurn, policy.Name, *p.MaxBudget.MaxTokensPerTurn)
				}
			}
		}

		if p.MaxRecursionDepth != nil && spec.Recursion != nil {
			if spec.Recursion.MaxDepth > *p.MaxRecursionDepth {
				return fmt.Sprintf("recursion.maxDepth %d exceeds policy %s limit of %d",
					spec.Recursion.MaxDepth, policy.Name, *p.MaxRecursionDepth)
			}
		}

		if p.MaxConcurrentCells != nil {
			cells := &cellmeshv1.CellList{}
			if err := c.List(ctx, cells); err == nil {
				running := 0
				for _, cell := range cells.Items {
					if cell.Namespace == namespace && cell.Status.Phase == cellmeshv1.CellPhaseRunning {
						running++
					}
				}
				if running >= *p.MaxConcurrentCells {
					return fmt.Sprintf("namespace %s has %d running cells, policy %s limits to %d",
						namespace, running, policy.Name, *p.MaxConcurrentCells)
				}
			}
		}
	}

	return ""
}
