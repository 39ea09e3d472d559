/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package protocol implements the contract-net, deliberation and auction
// protocol state machines. A ProtocolEnforcer validates incoming messages
// against a session's current state and participant set.
package protocol

import "fmt"

// Kind names one of the three supported protocols.
type Kind string

const (
	ContractNet  Kind = "contract-net"
	Deliberation Kind = "deliberation"
	Auction      Kind = "auction"
)

// StateDef declares which message types a state accepts and the state
// each transitions to.
type StateDef struct {
	Accepts     map[string]bool
	Transitions map[string]string
	Terminal    bool
}

// Definition is a protocol's full state table, keyed by state name.
type Definition map[string]StateDef

// Definitions holds the three named protocols.
var Definitions = map[Kind]Definition{
	ContractNet: {
		"open": {
			Accepts:     map[string]bool{"call_for_proposals": true},
			Transitions: map[string]string{"call_for_proposals": "bidding"},
		},
		"bidding": {
			Accepts:     map[string]bool{"bid": true},
			Transitions: map[string]string{"bid": "awarded"},
		},
		"awarded": {
			Accepts:     map[string]bool{"award": true},
			Transitions: map[string]string{"award": "executing"},
		},
		"executing": {
			Accepts:     map[string]bool{"result": true},
			Transitions: map[string]string{"result": "complete"},
		},
		"complete": {Terminal: true},
	},
	Deliberation: {
		"proposing": {
			Accepts:     map[string]bool{"propose": true},
			Transitions: map[string]string{"propose": "debating"},
		},
		"debating": {
			Accepts:     map[string]bool{"debate": true},
			Transitions: map[string]string{"debate": "deciding"},
		},
		"deciding": {
			Accepts:     map[string]bool{"decide": true},
			Transitions: map[string]string{"decide": "decided"},
		},
		"decided": {Terminal: true},
	},
	Auction: {
		"announcement": {
			Accepts:     map[string]bool{"announce": true},
			Transitions: map[string]string{"announce": "bids"},
		},
		"bids": {
			Accepts: map[string]bool{"bid": true, "close": true, "cancel": true},
			Transitions: map[string]string{
				"bid":    "bids",
				"close":  "sold",
				"cancel": "no_sale",
			},
		},
		"sold":    {Terminal: true},
		"no_sale": {Terminal: true},
	},
}

// Message is the minimal shape a ProtocolEnforcer validates: who sent it
// and what kind of protocol event it carries.
type Message struct {
	From string
	Type string
}

// Session tracks one in-flight protocol instance.
type Session struct {
	Protocol     Kind
	CurrentState string
	Participants map[string]bool
}

// NewSession starts a session for protocol kind in its initial state,
// with the given participants.
func NewSession(kind Kind, initialState string, participants []string) *Session {
	set := make(map[string]bool, len(participants))
	for _, p := range participants {
		set[p] = true
	}
	return &Session{Protocol: kind, CurrentState: initialState, Participants: set}
}

// Decision is the enforcer's answer to a validate call.
type Decision struct {
	Allowed   bool
	NextState string
	Reason    string
}

// ViolationError is raised (returned) when a message violates the
// protocol's state/participant rules.
type ViolationError struct {
	Reason string
}

func (e *ViolationError) Error() string { return fmt.Sprintf("protocol violation: %s", e.Reason) }

// Enforcer validates messages against protocol Definitions.
type Enforcer struct {
	defs map[Kind]Definition
}

// NewEnforcer constructs an Enforcer over the standard Definitions.
func NewEnforcer() *Enforcer {
	return &Enforcer{defs: Definitions}
}

// Validate checks incoming against session's current state: the message
// type must be accepted by the current state, from must be a current
// participant, and the session must not already be in a terminal state.
// On success it returns the next state without mutating session; callers
// advance session.CurrentState themselves once the side effect commits.
func (e *Enforcer) Validate(session *Session, incoming Message) (Decision, error) {
	def, ok := e.defs[session.Protocol]
	if !ok {
		return Decision{}, &ViolationError{Reason: fmt.Sprintf("unknown protocol %q", session.Protocol)}
	}
	state, ok := def[session.CurrentState]
	if !ok {
		return Decision{}, &ViolationError{Reason: fmt.Sprintf("unknown state %q", session.CurrentState)}
	}
	if state.Terminal {
		return Decision{}, &ViolationError{Reason: fmt.Sprintf("session already terminal at %q", session.CurrentState)}
	}
	if !session.Participants[incoming.From] {
		return Decision{}, &ViolationError{Reason: fmt.Sprintf("%q is not a participant", incoming.From)}
	}
	if !state.Accepts[incoming.Type] {
		return Decision{}, &ViolationError{Reason: fmt.Sprintf("state %q does not accept %q", session.CurrentState, incoming.Type)}
	}
	next := state.Transitions[incoming.Type]
	return Decision{Allowed: true, NextState: next}, nil
}

// Advance validates incoming and, on success, mutates session.CurrentState
// to the resulting next state.
func (e *Enforcer) Advance(session *Session, incoming Message) error {
	decision, err := e.Validate(session, incoming)
	if err != nil {
		return err
	}
	session.CurrentState = decision.NextState
	return nil
}
