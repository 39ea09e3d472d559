/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package metrics registers the Prometheus counters/gauges/histograms and
// the OpenTelemetry tracer every controller and the agent runtime emit
// against.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// CellsTotal counts Cell phase transitions by phase and namespace.
	CellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellmesh_cells_total",
			Help: "Total number of Cell phase transitions by phase and namespace",
		},
		[]string{"phase", "namespace"},
	)
	// CellsActive gauges currently Running Cells per namespace.
	CellsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cellmesh_cells_active",
			Help: "Number of currently Running Cells by namespace",
		},
		[]string{"namespace"},
	)
	// CellCostUSD histograms a Cell's cumulative spend when it reaches a
	// terminal phase.
	CellCostUSD = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellmesh_cell_cost_usd",
			Help:    "Cumulative USD spend of a Cell at terminal phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 25.0},
		},
	)
	// BudgetExceededTotal counts budget_exceeded transitions by namespace.
	BudgetExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellmesh_budget_exceeded_total",
			Help: "Total number of Cells that exceeded their budget",
		},
		[]string{"namespace"},
	)
	// StuckDetectedTotal counts stuck-agent detections by action and namespace.
	StuckDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellmesh_stuck_detected_total",
			Help: "Total number of stuck Cell detections by action and namespace",
		},
		[]string{"action", "namespace"},
	)
	// FormationsTotalCells gauges a Formation's reconciled total cell count.
	FormationsTotalCells = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cellmesh_formation_total_cells",
			Help: "Reconciled status.totalCells per Formation",
		},
		[]string{"formation", "namespace"},
	)
	// MissionsTotal counts Mission phase transitions by phase and namespace.
	MissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellmesh_missions_total",
			Help: "Total number of Mission phase transitions by phase and namespace",
		},
		[]string{"phase", "namespace"},
	)
	// BlueprintVersionsTotal counts version bumps recorded by the Blueprint
	// controller.
	BlueprintVersionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellmesh_blueprint_versions_total",
			Help: "Total number of Blueprint version bumps by namespace",
		},
		[]string{"blueprint", "namespace"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		CellsTotal, CellsActive, CellCostUSD, BudgetExceededTotal,
		StuckDetectedTotal, FormationsTotalCells, MissionsTotal,
		BlueprintVersionsTotal,
	)
}

// Tracer is the module-wide OTel tracer; exporter wiring is an external
// collaborator so spans land on whatever SDK/exporter the deployer
// configures via the standard OTel environment variables.
var Tracer = otel.Tracer("kais.io/cellmesh")

// CellEventAttrs builds the standard span attributes for a Cell
// lifecycle event.
func CellEventAttrs(namespace, name, phase string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cellmesh.cell.name", name),
		attribute.String("cellmesh.cell.namespace", namespace),
		attribute.String("cellmesh.cell.phase", phase),
	}
}

// EmitSpanEvent starts and immediately ends a span recording name with
// attrs as a single event, for resource-lifecycle transitions that don't
// span meaningful wall time.
func EmitSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	_, span := Tracer.Start(ctx, name)
	defer span.End()
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
