/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

var treeCmd = &cobra.Command{
	Use:   "tree <cell-name>",
	Short: "Display a Cell's spawn tree",
	Long: `Display a Cell and all of its descendants, walking spec.parentRef
chains, as an ASCII tree.

Examples:
  cellmeshctl tree researcher
  cellmeshctl tree researcher -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

type treeNode struct {
	Name     string      `json:"name"`
	Phase    string      `json:"phase"`
	Provider string      `json:"provider"`
	Children []*treeNode `json:"children,omitempty"`
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rootName := args[0]

	root := &cellmeshv1.Cell{}
	if err := k8sClient.Get(ctx, client.ObjectKey{Namespace: getNamespace(), Name: rootName}, root); err != nil {
		return fmt.Errorf("failed to get cell: %w", err)
	}

	cellList := &cellmeshv1.CellList{}
	if err := k8sClient.List(ctx, cellList, client.InNamespace(getNamespace())); err != nil {
		return fmt.Errorf("failed to list cells: %w", err)
	}

	childMap := make(map[string][]cellmeshv1.Cell)
	for _, c := range cellList.Items {
		if c.Spec.ParentRef != "" {
			childMap[c.Spec.ParentRef] = append(childMap[c.Spec.ParentRef], c)
		}
	}

	node := buildTreeNode(root, childMap)

	if outputFormat == "json" {
		data, err := json.MarshalIndent(node, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printTreeRoot(node)
	return nil
}

func buildTreeNode(cell *cellmeshv1.Cell, childMap map[string][]cellmeshv1.Cell) *treeNode {
	node := &treeNode{
		Name:     cell.Name,
		Phase:    string(cell.Status.Phase),
		Provider: cell.Spec.Mind.Provider,
	}
	for _, child := range childMap[cell.Name] {
		c := child
		node.Children = append(node.Children, buildTreeNode(&c, childMap))
	}
	return node
}

func printTreeRoot(node *treeNode) {
	fmt.Printf("%s (%s, %s)\n", node.Name, node.Phase, node.Provider)
	printTreeChildren(node, "")
}

func printTreeChildren(node *treeNode, prefix string) {
	for i, child := range node.Children {
		isLast := i == len(node.Children)-1
		connector, childPrefix := "├── ", "│   "
		if isLast {
			connector, childPrefix = "└── ", "    "
		}
		fmt.Printf("%s%s%s (%s, %s)\n", prefix, connector, child.Name, child.Phase, child.Provider)
		if len(child.Children) > 0 {
			printTreeChildren(child, prefix+childPrefix)
		}
	}
}
