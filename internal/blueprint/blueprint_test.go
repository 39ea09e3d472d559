/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package blueprint

import "testing"

func TestRenderBareVariablePreservesType(t *testing.T) {
	vars := map[string]any{"replicas": float64(3), "enabled": true}
	out, err := Render(map[string]any{
		"replicas": "{{ replicas }}",
		"enabled":  "{{ enabled }}",
	}, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := out.(map[string]any)
	if m["replicas"].(float64) != 3 {
		t.Fatalf("replicas = %v", m["replicas"])
	}
	if m["enabled"].(bool) != true {
		t.Fatalf("enabled = %v", m["enabled"])
	}
}

func TestRenderMixedStringCoercion(t *testing.T) {
	vars := map[string]any{"name": "coder", "n": float64(2)}
	out, err := Render("cell-{{ name }}-{{ n }}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "cell-coder-2" {
		t.Fatalf("out = %v", out)
	}
}

func TestRenderUnknownVariableErrors(t *testing.T) {
	_, err := Render("{{ missing }}", map[string]any{})
	if err == nil {
		t.Fatal("expected error for unknown variable")
	}
}

func TestRenderIdentityVariablesEqualsTemplate(t *testing.T) {
	// Round-trip law: rendering with identity variables (ones whose
	// value is their own "{{ name }}" placeholder) leaves a plain-string
	// template textually unchanged.
	vars := map[string]any{"env": "{{ env }}"}
	out, err := Render("{{ env }}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{{ env }}" {
		t.Fatalf("out = %v", out)
	}
}

func TestConditionalEquality(t *testing.T) {
	vars := map[string]any{"tier": "gold"}
	out, err := Render("{% if tier == \"gold\" %}premium{% else %}standard{% endif %}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "premium" {
		t.Fatalf("out = %v", out)
	}
}

func TestConditionalBoolean(t *testing.T) {
	out, err := Render("{% if canSpawn %}open{% else %}closed{% endif %}", map[string]any{"canSpawn": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "closed" {
		t.Fatalf("out = %v", out)
	}
}

func TestRenderArraysAndNesting(t *testing.T) {
	vars := map[string]any{"n": float64(1)}
	out, err := Render([]any{"{{ n }}", map[string]any{"x": "{{ n }}"}}, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr := out.([]any)
	if arr[0].(float64) != 1 {
		t.Fatalf("arr[0] = %v", arr[0])
	}
	if arr[1].(map[string]any)["x"].(float64) != 1 {
		t.Fatalf("arr[1].x = %v", arr[1])
	}
}
