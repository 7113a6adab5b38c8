package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Go 1.25 Released</title></head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <article>
    <h1>Go 1.25 Released</h1>
    <p>The latest Go release brings container-aware GOMAXPROCS defaults and an
    experimental garbage collector tuned for modern allocation patterns.</p>

    <p>Runtime improvements reduce tail latencies for network-heavy services,
    and the toolchain now reports test failures with richer context.</p>

    <p>As always, the release keeps the compatibility promise: code that built
    with earlier versions keeps building with this one.</p>
  </article>
  <footer>Copyright notice that readers never want summarized.</footer>
</body>
</html>`

func TestExtractReturnsNormalizedText(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	text, err := c.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Mozilla/5.0", gotAgent)
	assert.Contains(t, text, "container-aware GOMAXPROCS")
	assert.Contains(t, text, "compatibility promise")
	assert.NotContains(t, text, "\n\n", "blank lines are stripped")
	for _, line := range strings.Split(text, "\n") {
		assert.Equal(t, strings.TrimSpace(line), line)
	}
}

func TestExtractFollowsRedirects(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(articlePage))
	}))
	defer target.Close()

	c := NewClient(5 * time.Second)
	text, err := c.Extract(context.Background(), target.URL+"/moved")
	require.NoError(t, err)
	assert.Contains(t, text, "container-aware GOMAXPROCS")
}

func TestExtractRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.Extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestExtractUnreachableHost(t *testing.T) {
	c := NewClient(200 * time.Millisecond)
	_, err := c.Extract(context.Background(), "http://127.0.0.1:1/article")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch")
}

func TestNormalize(t *testing.T) {
	in := "  First paragraph.  \n\n\n\tSecond   line.\n   \nThird.\n"
	assert.Equal(t, "First paragraph.\nSecond   line.\nThird.", normalize(in))
}
