package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// historyWindow bounds how much transcript is inlined into a turn prompt.
// Synthesis always sees the full transcript.
const historyWindow = 20

// Config holds configuration for the LLM client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the chat model used for turns and synthesis.
	Model string `koanf:"model"`

	// APIKey authenticates against the endpoint.
	APIKey string `koanf:"api_key"`

	// Temperature for turn generation. Synthesis always runs at 0.
	Temperature float64 `koanf:"temperature"`
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return Config{
		BaseURL:     baseURL,
		Model:       model,
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		Temperature: 0.7,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL required")
	}
	if c.Model == "" {
		return errors.New("model required")
	}
	return nil
}

// Client implements TurnGenerator and Synthesizer over an OpenAI-compatible
// chat model via langchaingo. Memory and web lookups are optional
// collaborators; when present their results are folded into the prompt and
// recorded as tool calls on the produced message.
type Client struct {
	model  llms.Model
	memory MemorySearcher
	web    WebSearcher
	logger *zap.Logger
	config Config
}

// NewClient creates a client with the given configuration.
// memory and web may be nil; the client degrades to prompt-only turns.
func NewClient(cfg Config, memory MemorySearcher, web WebSearcher, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	return &Client{
		model:  model,
		memory: memory,
		web:    web,
		logger: logger,
		config: cfg,
	}, nil
}

// NewClientWithModel creates a client around an existing model.
// Used by tests and by callers that construct the model themselves.
func NewClientWithModel(model llms.Model, memory MemorySearcher, web WebSearcher, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{model: model, memory: memory, web: web, logger: logger, config: Config{Temperature: 0.7}}
}

// GenerateTurn produces one group-chat message for the participant.
func (c *Client) GenerateTurn(ctx context.Context, tc TurnContext) (TurnResult, error) {
	var toolCalls []transcript.ToolCall

	memories := "No specific memories recorded"
	if c.memory != nil {
		found, err := c.memory.LookupMemory(ctx, tc.Participant, "travel preferences and constraints")
		if err != nil {
			// Memory lookup failure degrades the prompt, not the turn.
			c.logger.Warn("memory lookup failed",
				zap.String("participant_id", tc.Participant.ID),
				zap.Error(err),
			)
		} else if found != "" {
			memories = found
			toolCalls = append(toolCalls, transcript.ToolCall{
				Name:      "lookup_memory",
				Arguments: "travel preferences and constraints",
				Result:    found,
			})
		}
	}

	research := ""
	if c.web != nil {
		query := searchQuery(tc)
		found, err := c.web.SearchWeb(ctx, query)
		if err != nil {
			// Web search failure degrades the prompt, not the turn.
			c.logger.Warn("web search failed",
				zap.String("participant_id", tc.Participant.ID),
				zap.Error(err),
			)
		} else if found != "" {
			research = found
			toolCalls = append(toolCalls, transcript.ToolCall{
				Name:      "search_web",
				Arguments: query,
				Result:    found,
			})
		}
	}

	prompt := buildTurnPrompt(tc, memories, research)

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(c.config.Temperature),
	)
	if err != nil {
		return TurnResult{}, classify(fmt.Errorf("generating turn for %s: %w", tc.Participant.ID, err))
	}

	return TurnResult{
		Content:   strings.TrimSpace(out),
		ToolCalls: toolCalls,
	}, nil
}

// Synthesize produces the raw candidate-plan JSON for a completed volley.
func (c *Client) Synthesize(ctx context.Context, sc SynthesisContext) (string, error) {
	prompt := buildSynthesisPrompt(sc)

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", classify(fmt.Errorf("synthesizing plan: %w", err))
	}
	return out, nil
}

// classify tags network-ish failures as transient so the scheduler retries
// them, and passes everything else through unchanged.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "overloaded") {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

var (
	_ TurnGenerator = (*Client)(nil)
	_ Synthesizer   = (*Client)(nil)
)
