package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
)

func TestSearchClient_SearchWeb(t *testing.T) {
	var got searchPayload
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(searchReply{Results: []searchResult{
			{Title: "Best beaches in Portugal", URL: "https://example.com/beaches", Snippet: "Algarve and beyond", Date: "2026-03-01"},
			{Title: "Lisbon on a budget", URL: "https://example.com/lisbon"},
		}})
	}))
	defer ts.Close()

	c := NewSearchClient(SearchConfig{Endpoint: ts.URL, APIKey: "sk-test", MaxResults: 3}, nil)
	out, err := c.SearchWeb(context.Background(), "beach destinations in Portugal")
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "beach destinations in Portugal", got.Query)
	assert.Equal(t, 3, got.MaxResults)

	assert.Contains(t, out, "1. Best beaches in Portugal")
	assert.Contains(t, out, "URL: https://example.com/beaches")
	assert.Contains(t, out, "Snippet: Algarve and beyond")
	assert.Contains(t, out, "Date: 2026-03-01")
	assert.Contains(t, out, "2. Lisbon on a budget")
}

func TestSearchClient_EmptyResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(searchReply{})
	}))
	defer ts.Close()

	c := NewSearchClient(SearchConfig{Endpoint: ts.URL}, nil)
	out, err := c.SearchWeb(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, out, "no results should render to nothing, not filler")
}

func TestSearchClient_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(searchReply{Error: "rate limit exceeded"})
	}))
	defer ts.Close()

	c := NewSearchClient(SearchConfig{Endpoint: ts.URL}, nil)
	_, err := c.SearchWeb(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
	assert.True(t, IsTransient(err), "a rate-limited search is worth retrying")
}

func TestSearchClient_Cancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewSearchClient(SearchConfig{Endpoint: ts.URL}, nil)
	_, err := c.SearchWeb(ctx, "anything")
	require.Error(t, err)
}

func TestSearchQuery(t *testing.T) {
	q := searchQuery(TurnContext{Participant: registry.Participant{
		Preferences: registry.Preferences{
			TravelStyle:     "adventure",
			PreferredPlaces: []string{"Peru", "Chile"},
			BudgetMax:       3000,
		},
	}})
	assert.Equal(t, "adventure travel destination recommendations Peru or Chile under $3000 per person", q)

	q = searchQuery(TurnContext{})
	assert.Equal(t, "travel destination recommendations", q)
}
