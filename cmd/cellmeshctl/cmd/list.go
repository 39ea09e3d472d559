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

var listPhase string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List Cells",
	Long: `List Cells in the cluster.

Examples:
  cellmeshctl list
  cellmeshctl list --phase Running
  cellmeshctl list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listPhase, "phase", "", "Filter by phase")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cellList := &cellmeshv1.CellList{}
	if err := k8sClient.List(ctx, cellList, client.InNamespace(getNamespace())); err != nil {
		return fmt.Errorf("failed to list cells: %w", err)
	}

	if listPhase != "" {
		var filtered []cellmeshv1.Cell
		for _, c := range cellList.Items {
			if string(c.Status.Phase) == listPhase {
				filtered = append(filtered, c)
			}
		}
		cellList.Items = filtered
	}

	if outputFormat == "json" {
		var items []map[string]interface{}
		for _, c := range cellList.Items {
			items = append(items, map[string]interface{}{
				"name":   c.Name,
				"phase":  c.Status.Phase,
				"age":    time.Since(c.CreationTimestamp.Time).Round(time.Second).String(),
				"pod":    c.Status.PodName,
				"parent": c.Spec.ParentRef,
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
	_, _ = fmt.Fprintln(w, "NAME\tPHASE\tAGE\tPOD\tPARENT")
	for _, c := range cellList.Items {
		age := time.Since(c.CreationTimestamp.Time).Round(time.Second)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Status.Phase, age, c.Status.PodName, c.Spec.ParentRef)
	}
	return w.Flush()
}
