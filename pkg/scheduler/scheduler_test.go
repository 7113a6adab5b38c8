package scheduler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/retry"
)

func triggerServer(t *testing.T, method, path string, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != method || r.URL.Path != path {
			t.Errorf("unexpected request %s %s, want %s %s", r.Method, r.URL.Path, method, path)
		}
		switch status {
		case http.StatusOK:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status": "success"}`)
		default:
			w.WriteHeader(status)
		}
	}))
}

// statusServer reports busy for the first busyFor probes, then idle.
func statusServer(t *testing.T, path string, hits *atomic.Int32, busyFor int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path %s, want %s", r.URL.Path, path)
			http.Error(w, "wrong path", http.StatusInternalServerError)
			return
		}
		n := hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= busyFor {
			fmt.Fprint(w, `{"is_idle": false, "last_generated_id": "9-0", "last_delivered_id": "4-0", "pending_messages": 5}`)
			return
		}
		fmt.Fprint(w, `{"is_idle": true, "last_generated_id": "9-0", "last_delivered_id": "9-0", "pending_messages": 0}`)
	}))
}

func newTestService(t *testing.T, cfg config.SchedulerSettings) *Service {
	t.Helper()
	if cfg.ScheduleTime == "" {
		cfg.ScheduleTime = "08:30"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = time.Second
	}
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = time.Second
	}
	if cfg.StatusMaxAttempts == 0 {
		cfg.StatusMaxAttempts = 3
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	// Collapse the fixed waits so a failing pipeline finishes quickly.
	s.trigger = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, BackoffFactor: 1}
	s.poll = retry.Policy{MaxRetries: cfg.StatusMaxAttempts - 1, BaseDelay: time.Millisecond, BackoffFactor: 1}
	return s
}

func TestRunDailyHappyPath(t *testing.T) {
	var collectorHits, analyzerHits, composerHits, notionHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 0)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()
	notion := statusServer(t, "/notion/status", &notionHits, 0)
	defer notion.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     analyzer.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: notion.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 1, collectorHits.Load())
	assert.EqualValues(t, 1, analyzerHits.Load())
	assert.EqualValues(t, 1, composerHits.Load())
	assert.EqualValues(t, 1, notionHits.Load())
}

func TestRunDailyCollectorFailureStopsPipeline(t *testing.T) {
	var collectorHits, analyzerHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusServiceUnavailable, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 0)
	defer analyzer.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL: collector.URL,
		AnalyzerURL:  analyzer.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 3, collectorHits.Load(), "the trigger retries twice before giving up")
	assert.Zero(t, analyzerHits.Load())
}

func TestRunDailyWaitsForAnalyzerDrain(t *testing.T) {
	var collectorHits, analyzerHits, composerHits, notionHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 2)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()
	notion := statusServer(t, "/notion/status", &notionHits, 0)
	defer notion.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:      collector.URL,
		AnalyzerURL:       analyzer.URL,
		ComposerURL:       composer.URL,
		NotionWorkerURL:   notion.URL,
		StatusMaxAttempts: 5,
	})
	s.RunDaily()

	assert.EqualValues(t, 3, analyzerHits.Load(), "two busy probes, then idle")
	assert.EqualValues(t, 1, composerHits.Load())
}

func TestRunDailyDefersWhenAnalyzerStaysBusy(t *testing.T) {
	var collectorHits, analyzerHits, composerHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 100)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:      collector.URL,
		AnalyzerURL:       analyzer.URL,
		ComposerURL:       composer.URL,
		StatusMaxAttempts: 3,
	})
	s.RunDaily()

	assert.EqualValues(t, 3, analyzerHits.Load())
	assert.Zero(t, composerHits.Load(), "a busy analyzer defers the rest of the pass")
}

func TestRunDailyTreatsMissingStreamAsIdle(t *testing.T) {
	var collectorHits, composerHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status": "Stream not found", "is_idle": false}`)
	}))
	defer notFound.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     notFound.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: notFound.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 1, composerHits.Load(), "no stream means no backlog to drain")
}

func TestRunDailyIdleByStatusMessage(t *testing.T) {
	var collectorHits, composerHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	busyButGone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"is_idle": false, "status": "Stream not found, nothing consumed yet"}`)
	}))
	defer busyButGone.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     busyButGone.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: busyButGone.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 1, composerHits.Load())
}

func TestRunDailyAcceptsComposerNoContent(t *testing.T) {
	var collectorHits, analyzerHits, composerHits, notionHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 0)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusNoContent, &composerHits)
	defer composer.Close()
	notion := statusServer(t, "/notion/status", &notionHits, 0)
	defer notion.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     analyzer.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: notion.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 1, composerHits.Load())
	assert.EqualValues(t, 1, notionHits.Load(), "204 from /compose still completes the pass")
}

func TestRunDailyComposerFailureSkipsPublishWait(t *testing.T) {
	var collectorHits, analyzerHits, composerHits, notionHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 0)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusInternalServerError, &composerHits)
	defer composer.Close()
	notion := statusServer(t, "/notion/status", &notionHits, 0)
	defer notion.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     analyzer.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: notion.URL,
	})
	s.RunDaily()

	assert.EqualValues(t, 3, composerHits.Load())
	assert.Zero(t, notionHits.Load())
}

func TestTriggerNowRunsJob(t *testing.T) {
	var collectorHits, analyzerHits, composerHits, notionHits atomic.Int32
	collector := triggerServer(t, http.MethodGet, "/collect/rss", http.StatusOK, &collectorHits)
	defer collector.Close()
	analyzer := statusServer(t, "/analyzer/status", &analyzerHits, 0)
	defer analyzer.Close()
	composer := triggerServer(t, http.MethodPost, "/compose", http.StatusOK, &composerHits)
	defer composer.Close()
	notion := statusServer(t, "/notion/status", &notionHits, 0)
	defer notion.Close()

	s := newTestService(t, config.SchedulerSettings{
		CollectorURL:    collector.URL,
		AnalyzerURL:     analyzer.URL,
		ComposerURL:     composer.URL,
		NotionWorkerURL: notion.URL,
	})
	s.Start()
	require.NoError(t, s.TriggerNow())

	assert.Eventually(t, func() bool { return notionHits.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, collectorHits.Load())
}

func TestNewRejectsBadScheduleTime(t *testing.T) {
	for _, v := range []string{"", "0830", "25:00", "08:61", "late"} {
		_, err := New(config.SchedulerSettings{ScheduleTime: v, StatusMaxAttempts: 3})
		assert.Error(t, err, "schedule time %q", v)
	}
}

func TestParseScheduleTime(t *testing.T) {
	hour, minute, err := parseScheduleTime("08:30")
	require.NoError(t, err)
	assert.EqualValues(t, 8, hour)
	assert.EqualValues(t, 30, minute)

	hour, minute, err = parseScheduleTime("23:59")
	require.NoError(t, err)
	assert.EqualValues(t, 23, hour)
	assert.EqualValues(t, 59, minute)
}
