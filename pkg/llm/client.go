// Package llm summarizes article text through a chat-completion API and
// scores how faithful each summary is to its source.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravedigest/ravedigest/pkg/config"
)

const promptPrefix = "Please write a concise summary of the following text:\n\n"

// Summarizer produces a summary of article text together with a relevance
// score in [0, 1].
type Summarizer interface {
	Summarize(ctx context.Context, text string) (summary string, relevance float64, err error)
}

// Client wraps the chat-completion API with the configured model parameters.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewClient creates a summarization client from the LLM configuration.
func NewClient(cfg config.OpenAISettings) *Client {
	return &Client{
		api:         openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Summarize asks the model for a concise summary of text and scores it with
// ROUGE-L against the source. Blank input short-circuits to ("", 0) without
// an API call.
func (c *Client) Summarize(ctx context.Context, text string) (string, float64, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, nil
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: promptPrefix + text,
		}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("chat completion returned no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	return summary, Relevance(text, summary), nil
}

// Health verifies the API key with a models list call.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("openai API unreachable: %w", err)
	}
	return nil
}

// Relevance is the ROUGE-L F-measure between source and summary: the longest
// common subsequence over lowercased whitespace tokens, combined into
// 2PR/(P+R) and clamped to [0, 1]. A score that cannot be computed is 0, not
// an error; a bad score never blocks enrichment.
func Relevance(source, summary string) float64 {
	src := strings.Fields(strings.ToLower(source))
	sum := strings.Fields(strings.ToLower(summary))
	if len(src) == 0 || len(sum) == 0 {
		slog.Warn("Relevance score unavailable, defaulting to zero",
			"source_tokens", len(src), "summary_tokens", len(sum))
		return 0
	}

	lcs := lcsLength(src, sum)
	if lcs == 0 {
		return 0
	}
	recall := float64(lcs) / float64(len(src))
	precision := float64(lcs) / float64(len(sum))
	f := 2 * precision * recall / (precision + recall)

	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// lcsLength computes the longest common subsequence length with a two-row
// dynamic program, so long articles do not allocate a full matrix.
func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
