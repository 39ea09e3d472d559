/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package memory implements the bounded, append-only working memory a
// Cell's think/act loop reads and writes.
package memory

import (
	"context"
	"fmt"

	"github.com/kais-io/cellmesh/internal/mind"
)

// Config bounds a Memory's size. Mirrors api/v1 WorkingMemoryConfig.
type Config struct {
	MaxMessages    int
	SummarizeAfter int
}

// DefaultConfig matches the default WorkingMemoryConfig.
func DefaultConfig() Config {
	return Config{MaxMessages: 200, SummarizeAfter: 120}
}

// Memory is a per-Cell, single-writer, append-only conversation log with
// summarisation. Never accessed concurrently: the agent loop is its only
// writer.
type Memory struct {
	cfg      Config
	messages []mind.Message
}

// New constructs an empty Memory with cfg, applying defaults for zero
// fields.
func New(cfg Config) *Memory {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig().MaxMessages
	}
	if cfg.SummarizeAfter <= 0 {
		cfg.SummarizeAfter = DefaultConfig().SummarizeAfter
	}
	return &Memory{cfg: cfg}
}

// Append adds msg to the tail of memory.
func (m *Memory) Append(msg mind.Message) {
	m.messages = append(m.messages, msg)
}

// Messages returns the live message slice in order. Callers must not
// mutate the returned slice.
func (m *Memory) Messages() []mind.Message {
	return m.messages
}

// Len returns the current message count.
func (m *Memory) Len() int {
	return len(m.messages)
}

// Summarizer collapses a run of older messages into one summary string.
// The agent runtime supplies an implementation backed by the Cell's Mind.
type Summarizer func(ctx context.Context, messages []mind.Message) (string, error)

// keepLive is the number of most-recent messages to leave untouched by
// MaybeSummarize, per message collapsed into the running summary.
const keepLive = 20

// MaybeSummarize collapses older messages into a single summary assistant
// message once the log reaches cfg.SummarizeAfter, keeping the most
// recent keepLive messages live. A tool_use message and its matching
// tool_result are always kept on the same side of the cut (never split):
// if the boundary would split such a pair, the cut is pushed earlier so
// that both stay in the live span.
func (m *Memory) MaybeSummarize(ctx context.Context, summarize Summarizer) error {
	if len(m.messages) < m.cfg.SummarizeAfter {
		return nil
	}

	cut := len(m.messages) - keepLive
	if cut <= 0 {
		return nil
	}
	cut = adjustCutForToolPairs(m.messages, cut)
	if cut <= 0 {
		return nil
	}

	summary, err := summarize(ctx, m.messages[:cut])
	if err != nil {
		return fmt.Errorf("memory: summarize: %w", err)
	}

	rest := append([]mind.Message(nil), m.messages[cut:]...)
	m.messages = append([]mind.Message{{Role: mind.RoleAssistant, Content: summary}}, rest...)

	m.enforceMaxMessages()
	return nil
}

// adjustCutForToolPairs walks cut backward until it does not separate a
// tool_use-bearing assistant message from its matching tool result.
func adjustCutForToolPairs(messages []mind.Message, cut int) int {
	for cut > 0 && cut < len(messages) {
		before := messages[cut-1]
		after := messages[cut]
		if len(before.ToolCalls) > 0 && after.Role == mind.RoleTool {
			cut--
			continue
		}
		break
	}
	return cut
}

// enforceMaxMessages drops oldest non-summary messages until within
// MaxMessages. The synthesised summary message (always at index 0 after
// MaybeSummarize) is never dropped by this pass.
func (m *Memory) enforceMaxMessages() {
	if len(m.messages) <= m.cfg.MaxMessages {
		return
	}
	excess := len(m.messages) - m.cfg.MaxMessages
	// index 0 holds the summary; drop starting at index 1.
	if excess >= len(m.messages) {
		return
	}
	kept := make([]mind.Message, 0, m.cfg.MaxMessages)
	kept = append(kept, m.messages[0])
	kept = append(kept, m.messages[1+excess:]...)
	m.messages = kept
}
