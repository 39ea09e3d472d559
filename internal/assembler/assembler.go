/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package assembler builds a Mind.Think input from a system prompt,
// optional injections, and working memory.
package assembler

import (
	"strings"

	"github.com/kais-io/cellmesh/internal/mind"
)

// Input is the declared assembly request.
type Input struct {
	SystemPrompt  string
	WorkingMemory []mind.Message
	Injections    []string
}

const injectionSeparator = "\n\n---\n\n"

// Assemble prefixes one system message (systemPrompt, followed by any
// injections joined by "\n\n---\n\n") and appends working memory
// preserving order. Absent or empty injections yield a bare systemPrompt.
func Assemble(in Input) []mind.Message {
	content := in.SystemPrompt
	if len(in.Injections) > 0 {
		content = strings.Join(append([]string{in.SystemPrompt}, in.Injections...), injectionSeparator)
	}

	out := make([]mind.Message, 0, len(in.WorkingMemory)+1)
	out = append(out, mind.Message{Role: mind.RoleSystem, Content: content})
	out = append(out, in.WorkingMemory...)
	return out
}
