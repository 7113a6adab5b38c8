package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completionRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       "gpt-4o-mini",
		maxTokens:   150,
		temperature: 0.2,
	}
}

func completionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1737000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
	})
	return string(body)
}

func TestSummarize(t *testing.T) {
	const text = "Go 1.25 adds container-aware scheduling defaults for busy services."

	var got completionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON("  Go adds container-aware scheduling defaults.  ")))
	})

	summary, relevance, err := c.Summarize(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, "Go adds container-aware scheduling defaults.", summary)
	assert.Greater(t, relevance, 0.0)
	assert.LessOrEqual(t, relevance, 1.0)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, promptPrefix))
	assert.Contains(t, got.Messages[0].Content, text)
}

func TestSummarizeBlankInputSkipsAPI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("blank input must not reach the API")
	})

	summary, relevance, err := c.Summarize(context.Background(), " \n\t ")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Zero(t, relevance)
}

func TestSummarizeAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited","type":"requests"}}`, http.StatusTooManyRequests)
	})

	_, _, err := c.Summarize(context.Background(), "some article text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestSummarizeNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
	})

	_, _, err := c.Summarize(context.Background(), "some article text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestRelevance(t *testing.T) {
	t.Run("identical text scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, Relevance("go is expressive and clean", "go is expressive and clean"), 1e-9)
	})

	t.Run("partial overlap", func(t *testing.T) {
		// LCS = 2 of source 4 and summary 2: P = 1, R = 0.5, F = 2/3.
		assert.InDelta(t, 2.0/3.0, Relevance("a b c d", "a c"), 1e-9)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.InDelta(t, 1.0, Relevance("Go Routines", "go routines"), 1e-9)
	})

	t.Run("disjoint tokens score zero", func(t *testing.T) {
		assert.Zero(t, Relevance("alpha beta", "gamma delta"))
	})

	t.Run("empty sides score zero", func(t *testing.T) {
		assert.Zero(t, Relevance("", "summary"))
		assert.Zero(t, Relevance("source", "   "))
	})
}

func TestLCSLength(t *testing.T) {
	a := strings.Fields("the quick brown fox jumps over the lazy dog")
	b := strings.Fields("quick fox leaps over a lazy dog")
	// quick fox over lazy dog
	assert.Equal(t, 5, lcsLength(a, b))
}
