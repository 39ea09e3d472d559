/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package topology generates per-cell routing tables from a Formation's
// declared topology and enforces them at send_message time.
package topology

import (
	"fmt"
	"sort"

	cellmeshv1 "github.com/kais-io/cellmesh/api/v1"
)

// RouteTable maps a concrete cell name to the set of names it may send
// to. Serialised verbatim into the formation's routing ConfigMap.
type RouteTable map[string][]string

// Generate expands spec.Cells x spec.Cells[].Replicas into concrete cell
// names and builds the RouteTable for spec.Topology.Kind.
func Generate(spec cellmeshv1.FormationSpec) (RouteTable, error) {
	names := concreteNames(spec.Cells)

	switch spec.Topology.Kind {
	case cellmeshv1.TopologyFullMesh:
		return fullMesh(names), nil
	case cellmeshv1.TopologyStar:
		return star(names, spec.Topology.Hub)
	case cellmeshv1.TopologyRing:
		return ring(names), nil
	case cellmeshv1.TopologyHierarchy:
		return hierarchy(spec.Cells, spec.Topology.Root)
	case cellmeshv1.TopologyBlackboard:
		return blackboard(names), nil
	case cellmeshv1.TopologyBroadcast:
		return broadcast(names, spec.Topology.Channel)
	case cellmeshv1.TopologyRoute:
		if spec.Topology.Table == nil {
			return nil, fmt.Errorf("topology: route topology requires a table")
		}
		out := make(RouteTable, len(spec.Topology.Table))
		for k, v := range spec.Topology.Table {
			out[k] = append([]string(nil), v...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("topology: unknown kind %q", spec.Topology.Kind)
	}
}

// concreteNames materialises "<declName>-<i>" for every replica of every
// CellDecl, in declaration order.
func concreteNames(cells []cellmeshv1.CellDecl) []string {
	var names []string
	for _, decl := range cells {
		replicas := decl.Replicas
		if replicas <= 0 {
			replicas = 1
		}
		for i := 0; i < replicas; i++ {
			names = append(names, fmt.Sprintf("%s-%d", decl.Name, i))
		}
	}
	return names
}

func fullMesh(names []string) RouteTable {
	rt := make(RouteTable, len(names))
	for _, n := range names {
		var targets []string
		for _, m := range names {
			if m != n {
				targets = append(targets, m)
			}
		}
		rt[n] = targets
	}
	return rt
}

func star(names []string, hub string) (RouteTable, error) {
	if hub == "" {
		return nil, fmt.Errorf("topology: star requires a hub")
	}
	hubNames := namesForDecl(names, hub)
	if len(hubNames) == 0 {
		return nil, fmt.Errorf("topology: star hub %q matches no cells", hub)
	}
	rt := make(RouteTable, len(names))
	var spokes []string
	for _, n := range names {
		if !isDecl(n, hub) {
			spokes = append(spokes, n)
		}
	}
	for _, h := range hubNames {
		rt[h] = append([]string(nil), spokes...)
	}
	for _, s := range spokes {
		rt[s] = hubNames
	}
	return rt, nil
}

// ring sorts cell names and routes cell[i] -> cell[(i+1) mod n].
func ring(names []string) RouteTable {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	n := len(sorted)
	rt := make(RouteTable, n)
	for i, name := range sorted {
		if n == 0 {
			continue
		}
		rt[name] = []string{sorted[(i+1)%n]}
	}
	return rt
}

// hierarchy routes root <-> children: every replica of every non-root
// decl is a child of every replica of the root decl, and each child also
// routes to its own replica siblings.
func hierarchy(cells []cellmeshv1.CellDecl, root string) (RouteTable, error) {
	if root == "" {
		return nil, fmt.Errorf("topology: hierarchy requires a root")
	}
	all := concreteNames(cells)
	rootNames := namesForDecl(all, root)
	if len(rootNames) == 0 {
		return nil, fmt.Errorf("topology: hierarchy root %q matches no cells", root)
	}
	var children []string
	for _, n := range all {
		if !isDecl(n, root) {
			children = append(children, n)
		}
	}

	rt := make(RouteTable, len(all))
	for _, r := range rootNames {
		rt[r] = append([]string(nil), children...)
	}
	for _, c := range children {
		targets := append([]string(nil), rootNames...)
		targets = append(targets, ownSiblings(children, c)...)
		rt[c] = targets
	}
	return rt, nil
}

// ownSiblings returns the other replicas of the same declaration as name
// (a hierarchy child's own subtree, modelled as sibling replicas since
// CellDecl has no nested children of its own).
func ownSiblings(children []string, name string) []string {
	decl := declOf(name)
	var out []string
	for _, c := range children {
		if c != name && declOf(c) == decl {
			out = append(out, c)
		}
	}
	return out
}

func blackboard(names []string) RouteTable {
	// Every cell may publish to and read from every other: same shape as
	// full_mesh, kept as a distinct named case in the topology enum.
	return fullMesh(names)
}

func broadcast(names []string, channel string) (RouteTable, error) {
	if channel == "" {
		return nil, fmt.Errorf("topology: broadcast requires a channel")
	}
	rt := make(RouteTable, len(names))
	for _, n := range names {
		rt[n] = []string{channel}
	}
	return rt, nil
}

// namesForDecl returns the concrete names among names that belong to
// declaration declName.
func namesForDecl(names []string, declName string) []string {
	var out []string
	for _, n := range names {
		if isDecl(n, declName) {
			out = append(out, n)
		}
	}
	return out
}

func isDecl(concreteName, declName string) bool {
	return declOf(concreteName) == declName
}

// declOf strips the trailing "-<i>" replica suffix a concrete name
// carries, recovering its declaration name.
func declOf(concreteName string) string {
	for i := len(concreteName) - 1; i >= 0; i-- {
		if concreteName[i] == '-' {
			allDigits := true
			for j := i + 1; j < len(concreteName); j++ {
				if concreteName[j] < '0' || concreteName[j] > '9' {
					allDigits = false
					break
				}
			}
			if allDigits && i+1 < len(concreteName) {
				return concreteName[:i]
			}
		}
	}
	return concreteName
}

// Enforcer implements tools.TopologyEnforcer against a RouteTable.
type Enforcer struct {
	rt RouteTable
}

// NewEnforcer wraps rt as a tools.TopologyEnforcer.
func NewEnforcer(rt RouteTable) *Enforcer {
	return &Enforcer{rt: rt}
}

// CanSendTo reports whether from may send_message to to, and the full
// list of targets from is allowed to reach (for the violation message).
func (e *Enforcer) CanSendTo(from, to string) (bool, []string) {
	targets, ok := e.rt[from]
	if !ok {
		return false, nil
	}
	for _, t := range targets {
		if t == to {
			return true, targets
		}
	}
	return false, targets
}
