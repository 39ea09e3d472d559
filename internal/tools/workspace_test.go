/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import "testing"

func TestResolvePrivate(t *testing.T) {
	w := NewWorkspace("/workspace", "researcher")
	resolved, base, err := w.Resolve("private/notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != "/workspace/private/researcher/notes.txt" {
		t.Errorf("unexpected resolved path: %s", resolved)
	}
	if base != "/workspace/private/researcher" {
		t.Errorf("unexpected base: %s", base)
	}
}

func TestResolveSharedBare(t *testing.T) {
	w := NewWorkspace("/workspace", "researcher")
	resolved, _, err := w.Resolve("notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != "/workspace/shared/notes.txt" {
		t.Errorf("unexpected resolved path: %s", resolved)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	w := NewWorkspace("/workspace", "researcher")
	if _, _, err := w.Resolve("private/../../../etc/passwd"); err == nil {
		t.Error("expected traversal error")
	}
}

func TestResolveRejectsTraversalShared(t *testing.T) {
	w := NewWorkspace("/workspace", "researcher")
	if _, _, err := w.Resolve("shared/../../secret"); err == nil {
		t.Error("expected traversal error")
	}
}
