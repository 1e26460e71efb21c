package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultPage = `<html><body>
<div class="result__body">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fnews">Example News</a>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fnews">Latest   <b>headlines</b>
  from example.com &amp; friends</a>
</div>
<div class="result__body">
  <a class="result__a" href="https://other.org/page">Other</a>
  <a class="result__snippet" href="https://other.org/page">Another snippet</a>
</div>
</body></html>`

func testSearcher(handler http.HandlerFunc) (*DuckDuckGo, *httptest.Server) {
	srv := httptest.NewServer(handler)
	d := NewDuckDuckGo()
	d.endpoint = srv.URL
	d.client = srv.Client()
	return d, srv
}

func TestSearchParsesResults(t *testing.T) {
	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "go generics 2026-09-01", r.Form.Get("q"))
		fmt.Fprint(w, resultPage)
	})
	defer srv.Close()

	out := d.Search(context.Background(), "go generics 2026-09-01")

	assert.Contains(t, out, "Source: https://example.com/news")
	assert.Contains(t, out, "Snippet: Latest headlines from example.com & friends")
	assert.Contains(t, out, "Source: https://other.org/page")
}

func TestSearchNoResults(t *testing.T) {
	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>nothing here</p></body></html>")
	})
	defer srv.Close()

	assert.Equal(t, NoResults, d.Search(context.Background(), "anything"))
}

func TestSearchNonOKStatus(t *testing.T) {
	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	assert.Equal(t, NoResults, d.Search(context.Background(), "anything"))
}

func TestSearchConnectivityFailure(t *testing.T) {
	d := NewDuckDuckGo()
	// Reserved TEST-NET address, nothing listens there.
	d.endpoint = "http://192.0.2.1:1"
	d.client = &http.Client{Timeout: 500 * time.Millisecond}

	out := d.Search(context.Background(), "anything")
	assert.Equal(t, ConnectivityFailure, out)
}

func TestSearchCapsResultCount(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, `<div class="result__body">
			<a class="result__a" href="https://site%d.test/">t</a>
			<a class="result__snippet">snippet %d</a></div>`, i, i)
	}
	sb.WriteString("</body></html>")

	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sb.String())
	})
	defer srv.Close()

	out := d.Search(context.Background(), "q")
	assert.Equal(t, maxResults, strings.Count(out, "Source: "))
}

func TestResolveRedirect(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"uddg wrapped", "//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog", "https://go.dev/blog"},
		{"direct", "https://go.dev/blog", "https://go.dev/blog"},
		{"schemeless direct", "//go.dev/blog", "https://go.dev/blog"},
		{"relative path untouched", "/html/?q=next", "/html/?q=next"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRedirect(tt.href))
		})
	}
}

func TestScrapeExtractsText(t *testing.T) {
	page := `<html><head><style>body{color:red}</style></head><body>
	<nav>menu menu menu</nav>
	<script>alert("x")</script>
	<article><h1>Title</h1><p>Useful    body text.</p></article>
	<footer>copyright</footer>
	</body></html>`

	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})
	defer srv.Close()

	out := d.Scrape(context.Background(), srv.URL)

	assert.Contains(t, out, "Useful body text.")
	assert.NotContains(t, out, "menu menu menu")
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "copyright")
}

func TestScrapeCapsLength(t *testing.T) {
	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", strings.Repeat("word ", 5000))
	})
	defer srv.Close()

	out := d.Scrape(context.Background(), srv.URL)
	assert.LessOrEqual(t, len(out), maxPageChars)
}

func TestScrapeFailureIsInlineMarker(t *testing.T) {
	d, srv := testSearcher(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer srv.Close()

	out := d.Scrape(context.Background(), srv.URL)
	assert.True(t, strings.HasPrefix(out, "Failed to scrape URL"), out)
}
