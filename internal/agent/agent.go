// Package agent defines the capability interfaces the negotiation engine
// depends on, plus a langchaingo-backed client implementing them.
//
// The orchestrator treats every agent turn and the synthesis step as opaque
// generation calls. Auxiliary lookups (participant memory, web search) are
// synchronous calls made while a turn is being generated. All of these are
// interfaces so tests can replace live network calls deterministically.
package agent

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// ErrTransient marks a turn or synthesis failure worth retrying at the call
// site (timeout, rate limit). Anything not wrapped with it is treated as
// permanent by the scheduler's retry loop.
var ErrTransient = errors.New("transient agent error")

// IsTransient reports whether the error is a retryable agent failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// TurnContext is everything a participant's agent sees when producing a turn.
type TurnContext struct {
	Participant registry.Participant
	// Transcript is the full history so far; implementations may window it.
	Transcript []transcript.Message
	// Feedback holds rejection feedback seeding this volley, empty otherwise.
	Feedback []string
	// Opening is true for the very first turn of the session; the agent
	// proposes an initial plan instead of critiquing one.
	Opening bool
	// Volley is the index of the round this turn belongs to.
	Volley int
}

// TurnResult is the output of one agent turn.
type TurnResult struct {
	Content   string
	ToolCalls []transcript.ToolCall
}

// TurnGenerator produces one agent turn. Implementations block on the
// underlying model call; the scheduler suspends on it.
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, tc TurnContext) (TurnResult, error)
}

// SynthesisContext is the input to the plan-synthesis call.
type SynthesisContext struct {
	Transcript   []transcript.Message
	Participants []registry.Participant
	Volley       int
}

// Synthesizer produces the raw candidate-plan text for a completed volley.
// Parsing and validation of the output belong to the negotiation engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, sc SynthesisContext) (string, error)
}

// MemorySearcher looks up a participant's stored memories relevant to a query.
type MemorySearcher interface {
	LookupMemory(ctx context.Context, participant registry.Participant, query string) (string, error)
}

// WebSearcher answers a free-text query with external information.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) (string, error)
}
