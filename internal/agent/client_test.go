package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// fakeModel is a deterministic llms.Model double.
type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeMemory struct {
	result string
	err    error
}

func (f *fakeMemory) LookupMemory(_ context.Context, _ registry.Participant, _ string) (string, error) {
	return f.result, f.err
}

type fakeSearcher struct {
	result  string
	err     error
	queries []string
}

func (f *fakeSearcher) SearchWeb(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.result, f.err
}

func alice() registry.Participant {
	return registry.Participant{
		ID:          "alice",
		DisplayName: "Alice",
		Preferences: registry.Preferences{
			BudgetMin:   1500,
			BudgetMax:   2500,
			TravelStyle: "relaxation",
		},
	}
}

func TestClient_GenerateTurn_Opening(t *testing.T) {
	model := &fakeModel{response: "  Let's go to Lisbon in May.  "}
	c := NewClientWithModel(model, nil, nil, nil)

	res, err := c.GenerateTurn(context.Background(), TurnContext{
		Participant: alice(),
		Opening:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Let's go to Lisbon in May.", res.Content)
	assert.Empty(t, res.ToolCalls)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	assert.Contains(t, prompt, "Propose an initial travel plan")
	assert.Contains(t, prompt, "Alice")
	assert.Contains(t, prompt, "$1500 - $2500")
	assert.NotContains(t, prompt, "Recent chat history")
}

func TestClient_GenerateTurn_CritiqueWithFeedback(t *testing.T) {
	model := &fakeModel{response: "The budget works for Alice."}
	mem := &fakeMemory{result: "- Prefers window seats"}
	c := NewClientWithModel(model, mem, nil, nil)

	tc := TurnContext{
		Participant: alice(),
		Transcript: []transcript.Message{
			{Sender: "bob", Content: "How about Tokyo?"},
		},
		Feedback: []string{"budget too high"},
		Volley:   1,
	}
	res, err := c.GenerateTurn(context.Background(), tc)
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "lookup_memory", res.ToolCalls[0].Name)

	prompt := model.prompts[0]
	assert.Contains(t, prompt, "bob: How about Tokyo?")
	assert.Contains(t, prompt, "budget too high")
	assert.Contains(t, prompt, "Prefers window seats")
}

func TestClient_GenerateTurn_MemoryFailureDegrades(t *testing.T) {
	model := &fakeModel{response: "ok"}
	mem := &fakeMemory{err: errors.New("store unavailable")}
	c := NewClientWithModel(model, mem, nil, nil)

	res, err := c.GenerateTurn(context.Background(), TurnContext{Participant: alice()})
	require.NoError(t, err)
	assert.Empty(t, res.ToolCalls)
	assert.Contains(t, model.prompts[0], "No specific memories recorded")
}

func TestClient_GenerateTurn_WebSearchFoldedIntoPrompt(t *testing.T) {
	model := &fakeModel{response: "Madeira looks promising."}
	web := &fakeSearcher{result: "1. Madeira in spring\n   URL: https://example.com/madeira"}
	c := NewClientWithModel(model, nil, web, nil)

	res, err := c.GenerateTurn(context.Background(), TurnContext{
		Participant: alice(),
		Opening:     true,
	})
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "search_web", res.ToolCalls[0].Name)
	assert.Contains(t, res.ToolCalls[0].Result, "Madeira in spring")

	require.Len(t, web.queries, 1)
	assert.Contains(t, web.queries[0], "relaxation")
	assert.Contains(t, web.queries[0], "under $2500")

	assert.Contains(t, model.prompts[0], "Web research:")
	assert.Contains(t, model.prompts[0], "Madeira in spring")
}

func TestClient_GenerateTurn_WebSearchFailureDegrades(t *testing.T) {
	model := &fakeModel{response: "ok"}
	web := &fakeSearcher{err: errors.New("search unavailable")}
	c := NewClientWithModel(model, nil, web, nil)

	res, err := c.GenerateTurn(context.Background(), TurnContext{Participant: alice()})
	require.NoError(t, err)
	assert.Empty(t, res.ToolCalls)
	assert.NotContains(t, model.prompts[0], "Web research:")
}

func TestClient_Synthesize_FullHistory(t *testing.T) {
	model := &fakeModel{response: `{"destination":"Lisbon"}`}
	c := NewClientWithModel(model, nil, nil, nil)

	var msgs []transcript.Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, transcript.Message{Sender: "alice", Content: fmt.Sprintf("msg-%d", i)})
	}

	out, err := c.Synthesize(context.Background(), SynthesisContext{
		Transcript:   msgs,
		Participants: []registry.Participant{alice()},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"destination":"Lisbon"}`, out)

	// Synthesis must see the whole transcript, not a window.
	assert.Contains(t, model.prompts[0], "msg-0")
	assert.Contains(t, model.prompts[0], "msg-29")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit text", errors.New("API returned 429 rate limit"), true},
		{"overloaded", errors.New("server overloaded"), true},
		{"permanent", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsTransient(got) != tt.transient {
				t.Errorf("IsTransient(classify(%v)) = %v, want %v", tt.err, IsTransient(got), tt.transient)
			}
		})
	}
}

func TestRenderHistory_Window(t *testing.T) {
	var msgs []transcript.Message
	for i := 0; i < 25; i++ {
		msgs = append(msgs, transcript.Message{Sender: "a", Content: fmt.Sprintf("m%d", i)})
	}
	out := renderHistory(msgs, 20)
	assert.False(t, strings.Contains(out, "m4\n"), "windowed history should drop oldest messages")
	assert.Contains(t, out, "m24")
}
