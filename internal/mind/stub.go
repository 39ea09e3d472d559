/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package mind

import (
	"context"
	"fmt"
)

// StubMind is a canned-response Mind used by tests and dry-run
// deployments where no real provider client is wired. Concrete
// cloud/local providers live outside this module; this stub is the only
// Mind implementation that ships with it.
type StubMind struct {
	Response ThinkOutput
	Err      error
}

// NewStubMind returns a StubMind that echoes the last user message as an
// end_turn response.
func NewStubMind() *StubMind {
	return &StubMind{
		Response: ThinkOutput{StopReason: StopReasonEndTurn},
	}
}

func (s *StubMind) Think(_ context.Context, input ThinkInput) (*ThinkOutput, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Response.Content != "" || len(s.Response.ToolCalls) > 0 {
		out := s.Response
		return &out, nil
	}
	var last string
	for i := len(input.Messages) - 1; i >= 0; i-- {
		if input.Messages[i].Role == RoleUser {
			last = input.Messages[i].Content
			break
		}
	}
	return &ThinkOutput{
		Content:    fmt.Sprintf("[stub] received: %s", last),
		StopReason: StopReasonEndTurn,
	}, nil
}
