/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxReadChars = 10000

// ReadFileTool implements read_file.
type ReadFileTool struct {
	ws *Workspace
}

func NewReadFileTool(ws *Workspace) *ReadFileTool { return &ReadFileTool{ws: ws} }

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read a file from the private or shared workspace."
}
func (t *ReadFileTool) InputSchema() string {
	return `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`
}

func (t *ReadFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	resolved, _, err := t.ws.Resolve(args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args.Path, err)
	}
	content := string(data)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "\n[truncated]"
	}
	return content, nil
}

// WriteFileTool implements write_file.
type WriteFileTool struct {
	ws *Workspace
}

func NewWriteFileTool(ws *Workspace) *WriteFileTool { return &WriteFileTool{ws: ws} }

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write a file into the private or shared workspace, creating parent directories."
}
func (t *WriteFileTool) InputSchema() string {
	return `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`
}

func (t *WriteFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	resolved, _, err := t.ws.Resolve(args.Path)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(resolved, []byte(args.Content)); err != nil {
		return "", fmt.Errorf("write %s: %w", args.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// CommitFileTool implements commit_file: copy from private to shared workspace.
type CommitFileTool struct {
	ws *Workspace
}

func NewCommitFileTool(ws *Workspace) *CommitFileTool { return &CommitFileTool{ws: ws} }

func (t *CommitFileTool) Name() string { return "commit_file" }
func (t *CommitFileTool) Description() string {
	return "Copy a file from the private workspace to the shared workspace."
}
func (t *CommitFileTool) InputSchema() string {
	return `{"type":"object","properties":{"source":{"type":"string"},"destination":{"type":"string"}},"required":["source"]}`
}

func (t *CommitFileTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Destination == "" {
		args.Destination = args.Source
	}

	srcResolved, _, err := t.ws.Resolve("private/" + args.Source)
	if err != nil {
		return "", err
	}
	dstResolved, _, err := t.ws.Resolve("shared/" + args.Destination)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(srcResolved)
	if err != nil {
		return "", fmt.Errorf("commit read %s: %w", args.Source, err)
	}
	if err := writeAtomic(dstResolved, data); err != nil {
		return "", fmt.Errorf("commit write %s: %w", args.Destination, err)
	}
	return fmt.Sprintf("committed %s -> shared/%s", args.Source, args.Destination), nil
}

// writeAtomic creates parent directories, writes to a temp file in the
// same directory, then renames into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
