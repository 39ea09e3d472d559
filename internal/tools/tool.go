/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package tools implements the named, schema-validated tool registry and
// dispatch that a Cell's think/act loop invokes, plus the built-in
// tools: send_message, read_file, write_file, bash, commit_file,
// spawn_cell.
package tools

import (
	"context"
	"fmt"

	"github.com/kais-io/cellmesh/internal/mind"
)

// Tool is a named, schema-validated, side-effectful operation invokable
// by an agent.
type Tool interface {
	Name() string
	Description() string
	InputSchema() string // JSON Schema
	Execute(ctx context.Context, input string) (string, error)
}

// Result is the dispatch outcome for one tool call.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Registry holds a name -> Tool map and exposes tool definitions for
// model prompting.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, keyed by t.Name(). A later
// registration with the same name replaces the earlier one.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// GetDefinitions returns the ToolDefinition for every registered tool, for
// inclusion in a Mind.ThinkInput.
func (r *Registry) GetDefinitions() []mind.ToolDefinition {
	defs := make([]mind.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, mind.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Execute dispatches call to its named tool. Unknown names yield
// isError=true with "Unknown tool: <name>"; panics and errors from the
// tool's Execute are caught and reified as an error Result so the agent
// loop never crashes on a tool failure.
func (r *Registry) Execute(ctx context.Context, call mind.ToolCall) (result Result) {
	result = Result{CallID: call.ID, Name: call.Name}

	t, ok := r.tools[call.Name]
	if !ok {
		result.IsError = true
		result.Content = fmt.Sprintf("Unknown tool: %s", call.Name)
		return result
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.IsError = true
			result.Content = fmt.Sprintf("Tool error: %v", rec)
		}
	}()

	out, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		result.IsError = true
		result.Content = fmt.Sprintf("Tool error: %s", err.Error())
		return result
	}
	result.Content = out
	return result
}
