// Package transcript holds the append-only message log of a session.
//
// The transcript is the shared ground truth every later stage reads: agent
// turns append to it, the synthesis step reads all of it, and the HTTP API
// exposes it for audit. Positions are strictly increasing and messages are
// never mutated or removed, so the full negotiation history survives
// restarted volleys.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SenderSystem marks synthetic messages injected by the engine, such as the
// rejection-feedback notice that opens a revision volley.
const SenderSystem = "system"

// ToolCall records one auxiliary tool invocation made during a turn.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
}

// Message is one entry in the transcript. Immutable after creation.
type Message struct {
	ID        string     `json:"id"`
	Position  int        `json:"position"`
	Sender    string     `json:"sender"`
	Volley    int        `json:"volley"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Transcript is an ordered, append-only sequence of messages.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds a message and returns it with its assigned position and id.
// Position assignment is the only mutation the transcript ever performs.
func (t *Transcript) Append(sender string, volley int, content string, toolCalls []ToolCall) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		Position:  len(t.messages),
		Sender:    sender,
		Volley:    volley,
		Content:   content,
		ToolCalls: toolCalls,
		CreatedAt: time.Now().UTC(),
	}
	t.messages = append(t.messages, msg)
	return msg
}

// Messages returns a copy of all messages in position order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Restore rebuilds a transcript from persisted messages. Positions are
// trusted as stored; the store guarantees ordering.
func Restore(messages []Message) *Transcript {
	t := &Transcript{messages: make([]Message, len(messages))}
	copy(t.messages, messages)
	return t
}
