/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Workspace resolves private/shared tool paths under a Cell's mounted
// /workspace, rejecting traversal outside the declared base.
type Workspace struct {
	Root     string // defaults to /workspace
	CellName string
}

// NewWorkspace constructs a Workspace rooted at root for cellName. An
// empty root defaults to "/workspace".
func NewWorkspace(root, cellName string) *Workspace {
	if root == "" {
		root = "/workspace"
	}
	return &Workspace{Root: root, CellName: cellName}
}

func (w *Workspace) privateBase() string {
	return filepath.Join(w.Root, "private", w.CellName)
}

func (w *Workspace) sharedBase() string {
	return filepath.Join(w.Root, "shared")
}

// Resolve maps a tool-supplied path to an absolute filesystem path and
// its declared base dir: "private/…" resolves under the Cell's private
// dir, "shared/…" or a bare path resolves under the shared dir. The
// result is rejected if it escapes the selected base after
// canonicalisation (rejects "../" traversal).
func (w *Workspace) Resolve(path string) (resolved, base string, err error) {
	var rel string
	switch {
	case strings.HasPrefix(path, "private/"):
		base = w.privateBase()
		rel = strings.TrimPrefix(path, "private/")
	case strings.HasPrefix(path, "shared/"):
		base = w.sharedBase()
		rel = strings.TrimPrefix(path, "shared/")
	default:
		base = w.sharedBase()
		rel = path
	}

	joined := filepath.Join(base, rel)
	cleanBase := filepath.Clean(base)
	cleanJoined := filepath.Clean(joined)

	if cleanJoined != cleanBase && !strings.HasPrefix(cleanJoined, cleanBase+string(filepath.Separator)) {
		return "", "", fmt.Errorf("Path traversal: %q escapes base %q", path, cleanBase)
	}
	return cleanJoined, cleanBase, nil
}
