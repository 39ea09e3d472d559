/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

/*
cellmesh-manager is the cluster operator: it reconciles every kais.io/v1
resource (Cell, Formation, Mission, Blueprint, KnowledgeGraph, Channel;
CellPolicy is enforced during Cell reconciliation) and, optionally,
bridges Cell lifecycle events onto a durable Postgres event store.

Architecture:

	kubectl apply -f cell.yaml → Cell CRD → CellReconciler → Pod running cmd/cell
	manager in-process bus (cell.events.>) → Event Consumer → cell_events table

The Event Consumer persists only envelopes published on the manager's own
in-process bus. Each cmd/cell process builds a separate in-process bus of
its own, so events published inside a Cell Pod do not reach it.
*/
package main

import (
	"context"
	"flag"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
	"github.com/kais-io/cellmesh/internal/bus"
	"github.com/kais-io/cellmesh/internal/cache"
	"github.com/kais-io/cellmesh/internal/config"
	"github.com/kais-io/cellmesh/internal/controller"
	"github.com/kais-io/cellmesh/internal/eventconsumer"
	"github.com/kais-io/cellmesh/internal/mind"
	"github.com/kais-io/cellmesh/internal/store"
)

var scheme = runtime.NewScheme()

func init() {
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		panic(err)
	}
	if err := cellmeshv1.AddToScheme(scheme); err != nil {
		panic(err)
	}
}

func main() {
	var (
		metricsAddr     = flag.String("metrics-bind-address", ":8443", "Address the metrics endpoint binds to")
		probeAddr       = flag.String("health-probe-bind-address", ":8081", "Address the health probe endpoint binds to")
		enableLeader    = flag.Bool("leader-elect", false, "Enable leader election for a highly-available deployment")
		cellImage       = flag.String("cell-image", "", "Container image running cmd/cell (falls back to cellmesh-config)")
		neo4jImage      = flag.String("neo4j-image", "", "Container image running dedicated KnowledgeGraph neo4j pods")
		configNamespace = flag.String("config-namespace", "cellmesh-system", "Namespace holding the cellmesh-config ConfigMap")
		postgresDSN     = flag.String("postgres-dsn", os.Getenv("CELLMESH_POSTGRES_DSN"), "Postgres DSN for the event store; empty disables event persistence and metric completion checks")
		busQueueSize    = flag.Int("bus-queue-size", 256, "Per-subscription queue depth for the in-process bus")
	)
	opts := zap.Options{Development: false}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("setup")

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: *metricsAddr},
		HealthProbeBindAddress: *probeAddr,
		LeaderElection:         *enableLeader,
		LeaderElectionID:       "cellmesh-manager.kais.io",
	})
	if err != nil {
		log.Error(err, "unable to start manager")
		os.Exit(1)
	}

	cfgCache := config.NewCache(mgr.GetClient(), *configNamespace, config.DefaultCacheTTL)

	var eventStore store.EventStore
	if *postgresDSN != "" {
		if err := store.Migrate(*postgresDSN); err != nil {
			log.Error(err, "unable to migrate event store schema")
			os.Exit(1)
		}
		pgStore, err := store.Connect(context.Background(), *postgresDSN)
		if err != nil {
			log.Error(err, "unable to connect to event store")
			os.Exit(1)
		}
		eventStore = pgStore
		defer pgStore.Close()
	} else {
		log.Info("postgres-dsn not set: event persistence and metric completion checks are disabled")
	}

	busLog := zap.NewRaw(zap.UseFlagOptions(&opts))

	msgBus := bus.New(busLog, *busQueueSize)
	if eventStore != nil {
		consumer := eventconsumer.New(msgBus, eventStore, busLog)
		if err := consumer.Start(context.Background()); err != nil {
			log.Error(err, "unable to start event consumer")
			os.Exit(1)
		}
		defer consumer.Stop()
	}

	if err := (&controller.CellReconciler{
		Client:    mgr.GetClient(),
		Scheme:    mgr.GetScheme(),
		CellImage: *cellImage,
		Config:    cfgCache,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "Cell")
		os.Exit(1)
	}
	if err := (&controller.FormationReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "Formation")
		os.Exit(1)
	}
	if err := (&controller.MissionReconciler{
		Client:     mgr.GetClient(),
		Scheme:     mgr.GetScheme(),
		Store:      eventStore,
		Judge:      judgeMind(),
		JudgeCache: cache.New(cache.Config{Enabled: true}),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "Mission")
		os.Exit(1)
	}
	if err := (&controller.BlueprintReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "Blueprint")
		os.Exit(1)
	}
	if err := (&controller.KnowledgeGraphReconciler{
		Client:     mgr.GetClient(),
		Scheme:     mgr.GetScheme(),
		Neo4jImage: *neo4jImage,
		Config:     cfgCache,
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "KnowledgeGraph")
		os.Exit(1)
	}
	if err := (&controller.ChannelReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
	}).SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "Channel")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	log.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		log.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// judgeMind returns the Mind used to evaluate llm_judge completion checks.
// Concrete provider wiring lives outside this binary; a deployer that
// wants llm_judge checks to actually resolve supplies one via a build
// that swaps this out, the same seam cmd/cell uses for its own Mind
// construction.
func judgeMind() mind.Mind {
	return nil
}
