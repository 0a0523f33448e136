package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SearchConfig configures the web search collaborator folded into agent
// turns. An empty endpoint disables web search entirely.
type SearchConfig struct {
	// Endpoint is the search API base URL, e.g. https://api.perplexity.ai.
	Endpoint string `koanf:"endpoint"`

	// APIKey authenticates against the search API.
	APIKey string `koanf:"api_key"`

	// MaxResults bounds the number of results per query.
	MaxResults int `koanf:"max_results"`

	// Timeout bounds a single search call.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SearchConfig) ApplyDefaults() {
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// searchPayload is the wire request for POST {endpoint}/search.
type searchPayload struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searchReply is the wire response.
type searchReply struct {
	Results []searchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// SearchClient answers free-text travel queries against an HTTP search API.
// It implements WebSearcher.
type SearchClient struct {
	endpoint   string
	apiKey     string
	maxResults int
	http       *http.Client
	logger     *zap.Logger
}

var _ WebSearcher = (*SearchClient)(nil)

// NewSearchClient creates a search client.
func NewSearchClient(cfg SearchConfig, logger *zap.Logger) *SearchClient {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// SearchWeb runs one query and renders the results as a numbered list
// suitable for inlining into a prompt.
func (c *SearchClient) SearchWeb(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchPayload{Query: query, MaxResults: c.maxResults})
	if err != nil {
		return "", fmt.Errorf("encoding search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", classify(fmt.Errorf("search call: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}

	var reply searchReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decoding search response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := reply.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", classify(fmt.Errorf("search rejected (status %d): %s", resp.StatusCode, msg))
	}

	c.logger.Debug("web search complete",
		zap.String("query", query),
		zap.Int("results", len(reply.Results)),
	)
	return formatResults(reply.Results), nil
}

// formatResults renders search results as a numbered list. Empty input
// renders to the empty string so callers can skip the prompt section.
func formatResults(results []searchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n", i+1, r.Title, r.URL)
		if r.Date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", r.Date)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   Snippet: %s\n", r.Snippet)
		}
	}
	return strings.TrimSpace(b.String())
}

// searchQuery derives a travel research query from the participant's
// preferences.
func searchQuery(tc TurnContext) string {
	p := tc.Participant.Preferences
	var b strings.Builder
	if p.TravelStyle != "" {
		b.WriteString(p.TravelStyle + " ")
	}
	b.WriteString("travel destination recommendations")
	if len(p.PreferredPlaces) > 0 {
		b.WriteString(" " + strings.Join(p.PreferredPlaces, " or "))
	}
	if p.BudgetMax > 0 {
		fmt.Fprintf(&b, " under $%d per person", p.BudgetMax)
	}
	return b.String()
}
