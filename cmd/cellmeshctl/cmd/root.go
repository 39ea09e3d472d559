/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package cmd implements cellmeshctl, the operator-facing CLI for
// spawning and inspecting Cells directly against the cluster API.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

var (
	kubeconfig   string
	namespace    string
	outputFormat string

	k8sClient client.Client
	scheme    = runtime.NewScheme()
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(cellmeshv1.AddToScheme(scheme))
}

var rootCmd = &cobra.Command{
	Use:   "cellmeshctl",
	Short: "Operate a CellMesh cluster",
	Long: `cellmeshctl spawns and inspects Cells, Formations, and Missions
running in a CellMesh cluster.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initClient()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig file (defaults to the usual loading rules)")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "Namespace to operate in (defaults to the kubeconfig context, then \"default\")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initClient() error {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})

	if namespace == "" {
		if ns, _, err := clientConfig.Namespace(); err == nil && ns != "" {
			namespace = ns
		}
	}

	restCfg, err := clientConfig.ClientConfig()
	if err != nil {
		return err
	}

	k8sClient, err = client.New(restCfg, client.Options{Scheme: scheme})
	return err
}

func getNamespace() string {
	if namespace != "" {
		return namespace
	}
	if ns := os.Getenv("CELLMESH_NAMESPACE"); ns != "" {
		return ns
	}
	return "default"
}
