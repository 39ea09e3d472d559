/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

var (
	spawnSystemPrompt string
	spawnProvider     string
	spawnModel        string
	spawnTools        []string
	spawnName         string
	spawnParent       string
	spawnMaxTotalCost string
	spawnWait         bool
	spawnWaitTimeout  string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn a new Cell",
	Long: `Spawn a new Cell in the cluster.

Examples:
  cellmeshctl spawn --prompt "You are a researcher" --provider stub --model stub-1
  cellmeshctl spawn --prompt "Summarize findings" --tools send_message,read_file --parent researcher
  cellmeshctl spawn --prompt "Quick task" --wait`,
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVarP(&spawnSystemPrompt, "prompt", "p", "", "Cell system prompt (required)")
	spawnCmd.Flags().StringVar(&spawnProvider, "provider", "stub", "Mind provider")
	spawnCmd.Flags().StringVarP(&spawnModel, "model", "m", "stub-1", "Mind model")
	spawnCmd.Flags().StringSliceVarP(&spawnTools, "tools", "t", nil, "Tools available to the Cell")
	spawnCmd.Flags().StringVar(&spawnName, "name", "", "Cell name")
	spawnCmd.Flags().StringVar(&spawnParent, "parent", "", "Parent Cell name (establishes the spawn tree)")
	spawnCmd.Flags().StringVar(&spawnMaxTotalCost, "max-total-cost", "", "Lifetime cost ceiling in USD")
	spawnCmd.Flags().BoolVarP(&spawnWait, "wait", "w", false, "Wait for the Cell to leave Pending")
	spawnCmd.Flags().StringVar(&spawnWaitTimeout, "wait-timeout", "5m", "Maximum time to wait when --wait is set")
	_ = spawnCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(spawnCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	name := spawnName
	if name == "" {
		name = fmt.Sprintf("cell-%d", time.Now().Unix())
	}
	name = strings.ToLower(strings.ReplaceAll(name, " ", "-"))

	cell := &cellmeshv1.Cell{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: getNamespace()},
		Spec: cellmeshv1.CellSpec{
			Mind: cellmeshv1.MindSpec{
				Provider:     spawnProvider,
				Model:        spawnModel,
				SystemPrompt: spawnSystemPrompt,
			},
			Tools:     spawnTools,
			ParentRef: spawnParent,
		},
	}
	if spawnMaxTotalCost != "" {
		cell.Spec.Budget = &cellmeshv1.BudgetSpec{MaxTotalCost: spawnMaxTotalCost}
	}

	if err := k8sClient.Create(ctx, cell); err != nil {
		return fmt.Errorf("failed to create cell: %w", err)
	}

	if outputFormat == "json" {
		data, _ := json.MarshalIndent(map[string]string{"name": name}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("✓ Cell '%s' created\n", name)
		if !spawnWait {
			fmt.Printf("\nUse 'cellmeshctl status %s' to check progress\n", name)
		}
	}

	if !spawnWait {
		return nil
	}

	waitDuration, err := time.ParseDuration(spawnWaitTimeout)
	if err != nil {
		return fmt.Errorf("invalid wait-timeout: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, waitDuration)
	defer cancel()
	return waitForCell(waitCtx, name)
}

func waitForCell(ctx context.Context, name string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait timed out (cell may still be starting)")
		case <-ticker.C:
			cell := &cellmeshv1.Cell{}
			if err := k8sClient.Get(ctx, client.ObjectKey{Namespace: getNamespace(), Name: name}, cell); err != nil {
				return fmt.Errorf("failed to get cell: %w", err)
			}
			switch cell.Status.Phase {
			case cellmeshv1.CellPhaseRunning:
				fmt.Printf("✓ Cell is running (pod: %s)\n", cell.Status.PodName)
				return nil
			case cellmeshv1.CellPhaseFailed:
				return fmt.Errorf("cell failed: %s", cell.Status.Message)
			case cellmeshv1.CellPhaseCompleted:
				fmt.Println("✓ Cell completed")
				return nil
			case cellmeshv1.CellPhasePending:
				fmt.Println("  Pending...")
			}
		}
	}
}
