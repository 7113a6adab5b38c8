package e2e

import (
	"context"
	"sync"

	"github.com/jomei/notionapi"

	"github.com/ravedigest/ravedigest/pkg/models"
)

// StubExtractor returns the same body for every URL, or Err when set.
type StubExtractor struct {
	mu    sync.Mutex
	Body  string
	Err   error
	calls int
}

func (s *StubExtractor) Extract(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	return s.Body, nil
}

func (s *StubExtractor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// SummarizeResult is one scripted summarizer outcome.
type SummarizeResult struct {
	Summary   string
	Relevance float64
	Err       error
}

// ScriptedSummarizer pops queued results in order; the last one repeats
// once the script runs out. An empty script always succeeds with ("SUM",
// 0.5).
type ScriptedSummarizer struct {
	mu     sync.Mutex
	Script []SummarizeResult
	calls  int
}

func (s *ScriptedSummarizer) Summarize(ctx context.Context, text string) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.Script) == 0 {
		return "SUM", 0.5, nil
	}
	next := s.Script[0]
	if len(s.Script) > 1 {
		s.Script = s.Script[1:]
	}
	return next.Summary, next.Relevance, next.Err
}

func (s *ScriptedSummarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PageRecorder stands in for the Notion client by remembering every digest
// it was asked to publish.
type PageRecorder struct {
	mu      sync.Mutex
	Err     error
	digests []models.Digest
	blocks  [][]notionapi.Block
}

func (r *PageRecorder) CreatePage(ctx context.Context, d models.Digest, blocks []notionapi.Block) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	r.digests = append(r.digests, d)
	r.blocks = append(r.blocks, blocks)
	return "https://www.notion.so/" + d.ID.String(), nil
}

// Published returns the recorded digests in creation order.
func (r *PageRecorder) Published() []models.Digest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Digest, len(r.digests))
	copy(out, r.digests)
	return out
}

// Blocks returns the block list passed with the nth created page.
func (r *PageRecorder) Blocks(n int) []notionapi.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks[n]
}
