/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CommandExecutor abstracts shell execution so the bash tool never shells
// out directly from this package; a concrete executor (os/exec-backed)
// is wired by the agent runtime's process environment.
type CommandExecutor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
}

const defaultBashTimeout = 30 * time.Second

// BashTool implements bash(command, timeout=30000ms).
type BashTool struct {
	exec CommandExecutor
}

func NewBashTool(exec CommandExecutor) *BashTool { return &BashTool{exec: exec} }

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Run a shell command with a bounded timeout." }
func (t *BashTool) InputSchema() string {
	return `{"type":"object","properties":{"command":{"type":"string"},"timeout":{"type":"integer"}},"required":["command"]}`
}

func (t *BashTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	timeout := defaultBashTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Millisecond
	}

	stdout, stderr, exitCode, err := t.exec.Run(ctx, args.Command, timeout)
	if err != nil {
		return "", fmt.Errorf("bash: %w", err)
	}

	if exitCode != 0 {
		return fmt.Sprintf("%s\n%s\n[exit code: %d]", stdout, stderr, exitCode), nil
	}
	if stdout == "" && stderr == "" {
		return "[no output]", nil
	}
	return stdout + "\n" + stderr, nil
}
