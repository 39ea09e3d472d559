/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

var statusCmd = &cobra.Command{
	Use:   "status [cell-name]",
	Short: "Get status of a Cell",
	Long: `Get the current status of a Cell, or every Cell if no name is given.

Examples:
  cellmeshctl status researcher
  cellmeshctl status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) > 0 {
		return showCellStatus(ctx, args[0])
	}
	return showAllCells(ctx)
}

func showCellStatus(ctx context.Context, name string) error {
	cell := &cellmeshv1.Cell{}
	if err := k8sClient.Get(ctx, client.ObjectKey{Namespace: getNamespace(), Name: name}, cell); err != nil {
		return fmt.Errorf("failed to get cell: %w", err)
	}

	if outputFormat == "json" {
		result := map[string]interface{}{
			"name":        cell.Name,
			"phase":       cell.Status.Phase,
			"message":     cell.Status.Message,
			"pod":         cell.Status.PodName,
			"provider":    cell.Spec.Mind.Provider,
			"model":       cell.Spec.Mind.Model,
			"totalCost":   cell.Status.TotalCost,
			"totalTokens": cell.Status.TotalTokens,
			"parent":      cell.Spec.ParentRef,
		}
		if cell.Status.LastActive != nil {
			result["lastActive"] = cell.Status.LastActive.Time
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Name:        %s\n", cell.Name)
	fmt.Printf("Phase:       %s\n", cell.Status.Phase)
	fmt.Printf("Message:     %s\n", cell.Status.Message)
	fmt.Printf("Pod:         %s\n", cell.Status.PodName)
	fmt.Printf("Total cost:  %s\n", cell.Status.TotalCost)
	fmt.Printf("Total tok:   %d\n", cell.Status.TotalTokens)
	if cell.Status.LastActive != nil {
		fmt.Printf("Last active: %s\n", cell.Status.LastActive.Format(time.RFC3339))
	}
	fmt.Println("\nSpec:")
	fmt.Printf("  Provider: %s\n", cell.Spec.Mind.Provider)
	fmt.Printf("  Model:    %s\n", cell.Spec.Mind.Model)
	if cell.Spec.ParentRef != "" {
		fmt.Printf("  Parent:   %s\n", cell.Spec.ParentRef)
	}
	if len(cell.Spec.Tools) > 0 {
		fmt.Printf("  Tools:    %v\n", cell.Spec.Tools)
	}
	return nil
}

func showAllCells(ctx context.Context) error {
	cellList := &cellmeshv1.CellList{}
	if err := k8sClient.List(ctx, cellList, client.InNamespace(getNamespace())); err != nil {
		return fmt.Errorf("failed to list cells: %w", err)
	}

	if outputFormat == "json" {
		var items []map[string]interface{}
		for _, c := range cellList.Items {
			items = append(items, map[string]interface{}{
				"name":    c.Name,
				"phase":   c.Status.Phase,
				"age":     time.Since(c.CreationTimestamp.Time).Round(time.Second).String(),
				"pod":     c.Status.PodName,
				"message": c.Status.Message,
			})
		}
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(cellList.Items) == 0 {
		fmt.Println("No cells found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPHASE\tAGE\tPOD\tMESSAGE")
	for _, c := range cellList.Items {
		age := time.Since(c.CreationTimestamp.Time).Round(time.Second)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Status.Phase, age, c.Status.PodName, truncate(c.Status.Message, 40))
	}
	return w.Flush()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
