// Package e2e exercises the digest pipeline end to end: real Redis streams
// on miniredis, a real PostgreSQL store, and scripted stand-ins for the
// article pages, the LLM, and the Notion API.
package e2e

import (
	"context"
	stdsql "database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/analyzer"
	"github.com/ravedigest/ravedigest/pkg/bus"
	"github.com/ravedigest/ravedigest/pkg/classify"
	"github.com/ravedigest/ravedigest/pkg/composer"
	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/notion"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/store"
	"github.com/ravedigest/ravedigest/pkg/worker"
	"github.com/ravedigest/ravedigest/test/util"
)

// Pipeline wires real bus and store clients with scripted externals. Each
// test gets its own miniredis and its own PostgreSQL schema, so pipelines
// never see each other's state.
type Pipeline struct {
	Bus   *bus.Client
	Store *store.Store
	DB    *stdsql.DB
	Cfg   config.ServiceSettings

	Extractor  *StubExtractor
	Summarizer *ScriptedSummarizer
	Pages      *PageRecorder

	t *testing.T
}

// NewPipeline provisions the backing services and returns a pipeline ready
// for seeding. All teardown is registered on t.
func NewPipeline(t *testing.T) *Pipeline {
	t.Helper()

	cfg := config.ServiceSettings{
		DeveloperKeywords:         []string{"ai", "golang", "programming"},
		CosineSimilarityThreshold: 0.6,
		MaxArticlesPerDigest:      10,
		StreamMaxLength:           1000,
		ConsumerGroupPrefix:       "ravedigest",
		RedisTimeout:              time.Second,
	}

	mr := miniredis.RunT(t)
	busClient, err := bus.NewClient(context.Background(), config.RedisSettings{URL: "redis://" + mr.Addr()}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = busClient.Close() })

	db := util.SetupTestDatabase(t)

	return &Pipeline{
		Bus:        busClient,
		Store:      store.New(db),
		DB:         db,
		Cfg:        cfg,
		Extractor:  &StubExtractor{Body: "body"},
		Summarizer: &ScriptedSummarizer{},
		Pages:      &PageRecorder{},
		t:          t,
	}
}

// fastPolicy keeps retried operations quick enough for test loops while
// still allowing two re-attempts.
func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, BackoffFactor: 2}
}

// workerConfig shrinks the consume-loop timings so tests drain streams in
// milliseconds instead of the production seconds.
func (p *Pipeline) workerConfig(stream, stage, consumer string) worker.Config {
	return worker.Config{
		Stream:     stream,
		Group:      p.Cfg.Group(stage),
		Consumer:   consumer,
		Block:      50 * time.Millisecond,
		SleepMin:   time.Millisecond,
		SleepMax:   2 * time.Millisecond,
		ErrorSleep: 5 * time.Millisecond,
	}
}

// AnalyzerWorker builds the enrichment worker over the scripted extractor
// and summarizer.
func (p *Pipeline) AnalyzerWorker() *worker.Worker {
	classifier := classify.NewClassifier(p.Cfg.DeveloperKeywords, p.Cfg.CosineSimilarityThreshold)
	svc := analyzer.NewService(p.Store, p.Bus, p.Extractor, p.Summarizer, classifier, fastPolicy())
	return worker.New(p.workerConfig(models.StreamRawArticles, "analyzer", "analyzer-1"), p.Bus, svc, nil)
}

// ComposerWorker builds the digest-composition worker.
func (p *Pipeline) ComposerWorker() *worker.Worker {
	svc := composer.NewService(p.Store, p.Bus, p.Cfg.MaxArticlesPerDigest, fastPolicy())
	return worker.New(p.workerConfig(models.StreamEnrichedArticles, "composer", "composer-1"), p.Bus, svc, nil)
}

// NotionWorker builds the publishing worker over the page recorder.
func (p *Pipeline) NotionWorker() *worker.Worker {
	breaker := retry.NewCircuitBreaker(5, time.Minute, slog.Default())
	pub := notion.NewPublisher(p.Store, p.Bus, p.Pages, fastPolicy(), breaker, nil)
	return worker.New(p.workerConfig(models.StreamDigests, "notion", "notion-consumer-1"), p.Bus, pub, nil)
}

// StartWorker runs w until the test ends.
func (p *Pipeline) StartWorker(w *worker.Worker) {
	p.t.Helper()
	w.Start(context.Background())
	p.t.Cleanup(w.Stop)
}

// SeedRawArticle appends one raw article message and returns its stream id.
func (p *Pipeline) SeedRawArticle(a models.Article) string {
	p.t.Helper()
	id, err := p.Bus.Append(context.Background(), models.StreamRawArticles, models.NewRawArticle(a).Fields())
	require.NoError(p.t, err)
	return id
}

// WaitIdle blocks until the stage's group has consumed and acked every
// message ever appended to stream.
func (p *Pipeline) WaitIdle(stream, stage string) {
	p.t.Helper()
	group := p.Cfg.Group(stage)
	require.Eventually(p.t, func() bool {
		status, err := p.Bus.Status(context.Background(), stream, group)
		return err == nil && status.Idle
	}, 10*time.Second, 20*time.Millisecond, "group %s on %s never drained", group, stream)
}

// PendingCount reports how many delivered-but-unacked messages the stage's
// group holds on stream.
func (p *Pipeline) PendingCount(stream, stage string) int64 {
	p.t.Helper()
	status, err := p.Bus.Status(context.Background(), stream, p.Cfg.Group(stage))
	require.NoError(p.t, err)
	return status.Pending
}

// StreamMessages drains stream through a throwaway inspection group and
// returns the decoded field maps in append order. Creating the group makes
// the stream exist, so tests asserting absence should use bus.ErrNoStream
// instead.
func (p *Pipeline) StreamMessages(stream string) []map[string]string {
	p.t.Helper()
	ctx := context.Background()
	require.NoError(p.t, p.Bus.EnsureGroup(ctx, stream, "inspect"))
	msgs, err := p.Bus.ReadGroup(ctx, stream, "inspect", "inspector-1", 100, 50*time.Millisecond)
	require.NoError(p.t, err)

	out := make([]map[string]string, 0, len(msgs))
	for _, msg := range msgs {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			fields[k] = v.(string)
		}
		out = append(out, fields)
	}
	return out
}

// CountRows returns the number of rows in one of the schema's tables.
func (p *Pipeline) CountRows(table string) int {
	p.t.Helper()
	var n int
	err := p.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(p.t, err)
	return n
}
