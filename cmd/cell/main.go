/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

/*
cellmesh-cell is the per-Cell agent process: the container cmd/manager's
CellReconciler schedules as the "<cell>-agent" Pod. It decodes its own
CellSpec from CELL_SPEC, wires a think/act runtime (internal/agent) around
that spec's Mind/Tools/Budget/Recursion declarations, and runs until the
process is signalled to stop.

Environment contract:

	CELL_NAME       required, the owning Cell's name
	CELL_NAMESPACE  defaults to "default"
	CELL_SPEC       the Cell's spec.CellSpec as JSON; required unless
	                CELL_SPEC_FILE is set
	CELL_SPEC_FILE  path to wait for and read a {name, namespace, spec}
	                assignment JSON from, instead of CELL_SPEC; used by
	                warm-pool pods (internal/controller/warm_pool.go),
	                which start with no Cell assigned yet and block here
	                until the controller execs an assignment into the file
	NATS_URL        carried for parity with a future shared-bus transport;
	                unused while the bus stays in-process (see DESIGN.md)
	CELL_MIND_API_KEY  optional, the Mind provider credential
	CELL_WORKSPACE  defaults to /workspace
	CELL_HEALTH_ADDR   /healthz + /readyz listen address, default :8081
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/agent"
	"github.com/kais-io/cellmesh/internal/budget"
	"github.com/kais-io/cellmesh/internal/bus"
	"github.com/kais-io/cellmesh/internal/controller"
	"github.com/kais-io/cellmesh/internal/memory"
	"github.com/kais-io/cellmesh/internal/mind"
	"github.com/kais-io/cellmesh/internal/recursion"
	"github.com/kais-io/cellmesh/internal/tools"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	name := os.Getenv("CELL_NAME")
	namespace := os.Getenv("CELL_NAMESPACE")
	specJSON := os.Getenv("CELL_SPEC")

	var spec cellmeshv1.CellSpec
	switch {
	case specJSON != "":
		if name == "" {
			log.Error("CELL_NAME is required")
			os.Exit(1)
		}
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			log.Error("invalid CELL_SPEC", zap.Error(err))
			os.Exit(1)
		}
	case os.Getenv("CELL_SPEC_FILE") != "":
		// Warm-pool pods start with no identity of their own: the
		// controller writes a full assignment (name, namespace, spec)
		// into the inbox file at claim time.
		data, err := waitForCellSpecFile(os.Getenv("CELL_SPEC_FILE"), 10*time.Minute)
		if err != nil {
			log.Error("waiting for CELL_SPEC_FILE", zap.Error(err))
			os.Exit(1)
		}
		var assignment struct {
			Name      string              `json:"name"`
			Namespace string              `json:"namespace"`
			Spec      cellmeshv1.CellSpec `json:"spec"`
		}
		if err := json.Unmarshal(data, &assignment); err != nil {
			log.Error("invalid cell assignment", zap.Error(err))
			os.Exit(1)
		}
		if name == "" {
			name = assignment.Name
		}
		if assignment.Namespace != "" {
			namespace = assignment.Namespace
		}
		spec = assignment.Spec
		if name == "" {
			log.Error("cell assignment carries no name")
			os.Exit(1)
		}
	default:
		log.Error("CELL_SPEC or CELL_SPEC_FILE is required")
		os.Exit(1)
	}
	if namespace == "" {
		namespace = "default"
	}
	workspaceRoot := os.Getenv("CELL_WORKSPACE")

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		log.Error("unable to build scheme", zap.Error(err))
		os.Exit(1)
	}
	if err := cellmeshv1.AddToScheme(scheme); err != nil {
		log.Error("unable to build scheme", zap.Error(err))
		os.Exit(1)
	}
	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		log.Error("unable to load kube config", zap.Error(err))
		os.Exit(1)
	}
	kubeClient, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		log.Error("unable to build kube client", zap.Error(err))
		os.Exit(1)
	}

	msgBus := bus.New(log, 256)

	thisCell := &cellmeshv1.Cell{}
	thisCell.Name = name
	thisCell.Namespace = namespace
	thisCell.Spec = spec

	tracker := budget.NewTracker(name, maxTotalCostOrDefault(spec.Budget))

	registry := buildRegistry(spec, name, namespace, msgBus, kubeClient, tracker, thisCell, workspaceRoot)

	cellMind, err := buildMind(spec.Mind)
	if err != nil {
		log.Error("unable to build mind", zap.Error(err))
		os.Exit(1)
	}

	cellAgent := agent.New(agent.Config{
		Namespace:      namespace,
		Name:           name,
		SystemPrompt:   spec.Mind.SystemPrompt,
		Temperature:    spec.Mind.Temperature,
		MaxTokens:      spec.Mind.MaxTokens,
		Bus:            msgBus,
		Mind:           cellMind,
		Memory:         memory.New(memory.DefaultConfig()),
		Tools:          registry,
		Tracker:        tracker,
		MaxTotalCost:   parseOptionalFloat(spec.Budget, func(b *cellmeshv1.BudgetSpec) string { return b.MaxTotalCost }),
		MaxCostPerHour: parseOptionalFloat(spec.Budget, func(b *cellmeshv1.BudgetSpec) string { return b.MaxCostPerHour }),
		Log:            log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cellAgent.Start(ctx); err != nil {
		log.Error("unable to start agent", zap.Error(err))
		os.Exit(1)
	}
	startHealthServer(log, cellAgent)
	log.Info("cell agent started", zap.String("cell", name), zap.String("namespace", namespace))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		cellAgent.Stop(context.Background())
	case <-cellAgent.Done():
		// The loop failed terminally (budget exceeded). Exit with a
		// fatal code so the Pod goes Failed and the Cell controller
		// moves status.phase to Failed.
		log.Error("cell agent failed", zap.String("cell", name))
		_ = log.Sync()
		os.Exit(2)
	}
}

// buildRegistry wires every tool named in spec.Tools; an unknown tool
// name is skipped rather than failing the process, the way an unknown
// model-requested tool call is handled at dispatch time.
func buildRegistry(spec cellmeshv1.CellSpec, name, namespace string, msgBus *bus.Bus, kubeClient client.Client, tracker *budget.Tracker, self *cellmeshv1.Cell, workspaceRoot string) *tools.Registry {
	registry := tools.NewRegistry()
	ws := tools.NewWorkspace(workspaceRoot, name)
	want := make(map[string]bool, len(spec.Tools))
	for _, t := range spec.Tools {
		want[t] = true
	}

	if want["send_message"] {
		registry.Register(tools.NewSendMessageTool(msgBus, namespace, name, nil))
	}
	if want["read_file"] {
		registry.Register(tools.NewReadFileTool(ws))
	}
	if want["write_file"] {
		registry.Register(tools.NewWriteFileTool(ws))
	}
	if want["commit_file"] {
		registry.Register(tools.NewCommitFileTool(ws))
	}
	if want["bash"] {
		registry.Register(tools.NewBashTool(&tools.ShellExecutor{Dir: workspaceRoot}))
	}
	if want["spawn_cell"] {
		treeReader := &controller.CellTreeNode{Client: kubeClient}
		validator := recursion.New(treeReader)
		creator := &controller.ClientCellCreator{Client: kubeClient}
		registry.Register(tools.NewSpawnCellTool(creator, validator, tracker, namespace, self))
	}
	return registry
}

// buildMind resolves spec.Mind.Provider to a concrete Mind
// implementation. Concrete provider HTTP clients are external
// collaborators; "stub" is the only provider this
// module ships, useful for dry runs and integration tests in a real
// cluster.
func buildMind(spec cellmeshv1.MindSpec) (mind.Mind, error) {
	switch spec.Provider {
	case "", "stub":
		return mind.NewStubMind(), nil
	default:
		return nil, fmt.Errorf("mind provider %q has no bundled client; supply one via a custom build", spec.Provider)
	}
}

func maxTotalCostOrDefault(b *cellmeshv1.BudgetSpec) float64 {
	if b == nil || b.MaxTotalCost == "" {
		return 1e9 // effectively unbounded when the Cell declares no ceiling
	}
	v, err := strconv.ParseFloat(b.MaxTotalCost, 64)
	if err != nil {
		return 1e9
	}
	return v
}

// startHealthServer serves /healthz and /readyz on CELL_HEALTH_ADDR
// (default :8081); readiness tracks the agent loop's Running state.
// Any other path is a 404 from the default mux.
func startHealthServer(log *zap.Logger, cellAgent *agent.Cell) {
	addr := os.Getenv("CELL_HEALTH_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", controller.HealthzHandler)
	mux.Handle("/readyz", controller.ReadyzHandler(func() bool {
		return cellAgent.State() == agent.StateRunning
	}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Warn("health server stopped", zap.Error(err))
		}
	}()
}

// waitForCellSpecFile polls for path until it exists and is non-empty,
// the warm-pool claim handshake: the pod idles here until the controller
// writes a CellSpec into the file.
func waitForCellSpecFile(path string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out after %s waiting for %s", timeout, path)
		}
		time.Sleep(2 * time.Second)
	}
}

func parseOptionalFloat(b *cellmeshv1.BudgetSpec, get func(*cellmeshv1.BudgetSpec) string) *float64 {
	if b == nil {
		return nil
	}
	s := get(b)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
