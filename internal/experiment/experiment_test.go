/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package experiment

import "testing"

func points(variant string, values []float64, metric string) []RunDataPoint {
	out := make([]RunDataPoint, len(values))
	for i, v := range values {
		out[i] = RunDataPoint{VariantKey: variant, Metrics: map[string]float64{metric: v}}
	}
	return out
}

// TestFastSlowComparison compares a clearly faster variant against a
// slower one and expects an unambiguous significant winner.
func TestFastSlowComparison(t *testing.T) {
	fast := []float64{10, 11, 12, 10, 11, 12, 10, 11}
	slow := []float64{50, 52, 48, 51, 49, 50, 52, 48}

	var all []RunDataPoint
	all = append(all, points("fast", fast, "time")...)
	all = append(all, points("slow", slow, "time")...)

	comparisons := Pairwise(all, []string{"time"})
	if len(comparisons) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(comparisons))
	}
	c := comparisons[0]
	if !c.Significant {
		t.Fatalf("expected significant, got %+v", c)
	}
	if c.PValue >= 0.001 {
		t.Fatalf("expected pValue < 0.001, got %v", c.PValue)
	}
	if c.Winner != "fast" {
		t.Fatalf("expected winner fast, got %v", c.Winner)
	}

	best := BestVariant(all, "time")
	if best.Variant != "fast" {
		t.Fatalf("expected best variant fast, got %+v", best)
	}
	if !best.SignificantlyBetter {
		t.Fatalf("expected fast significantly better, got %+v", best)
	}
}

func TestStatsByVariant(t *testing.T) {
	all := points("a", []float64{1, 2, 3}, "m")
	stats := StatsByVariant(all, []string{"m"})
	s := stats["a"]["m"]
	if s.N != 3 || s.Mean != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if s.Min != 1 || s.Max != 3 {
		t.Fatalf("min/max = %v/%v", s.Min, s.Max)
	}
}

func TestTieWhenNotSignificant(t *testing.T) {
	a := points("a", []float64{10, 11, 12}, "m")
	b := points("b", []float64{10.1, 11.1, 11.9}, "m")
	all := append(a, b...)
	comparisons := Pairwise(all, []string{"m"})
	if comparisons[0].Significant {
		t.Fatalf("expected not significant for near-identical series, got %+v", comparisons[0])
	}
	if comparisons[0].Winner != "tie" {
		t.Fatalf("expected tie, got %v", comparisons[0].Winner)
	}
}

func TestParetoFront(t *testing.T) {
	points := []ParetoPoint{
		{VariantKey: "a", Values: map[string]float64{"cost": 1, "latency": 10}},
		{VariantKey: "b", Values: map[string]float64{"cost": 2, "latency": 5}},
		{VariantKey: "c", Values: map[string]float64{"cost": 3, "latency": 20}}, // dominated by a
	}
	front := ParetoFront(points, []string{"cost", "latency"})
	if len(front) != 2 {
		t.Fatalf("expected 2 front points, got %d: %+v", len(front), front)
	}
	names := map[string]bool{}
	for _, p := range front {
		names[p.VariantKey] = true
	}
	if names["c"] {
		t.Fatal("c should be dominated and excluded from the front")
	}
}

func TestBelowMinimumSampleNeverSignificant(t *testing.T) {
	a := points("a", []float64{1, 100}, "m")
	b := points("b", []float64{1, 100}, "m")
	all := append(a, b...)
	c := Pairwise(all, []string{"m"})[0]
	if c.Significant {
		t.Fatal("n < 3 per side must never be significant")
	}
}
