package websearch

import (
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

const (
	searchEndpoint = "https://html.duckduckgo.com/html/"
	maxResults     = 5

	// ConnectivityFailure is surfaced verbatim into the model context so it
	// admits to the user that live data is out of reach instead of guessing.
	ConnectivityFailure = "CRITICAL: Web search failed due to a connectivity issue (Internet might be down). You MUST inform the user you cannot check real-time data right now."

	// NoResults signals an empty but successful search.
	NoResults = "No recent web results found."
)

// DuckDuckGo queries the HTML (non-JS) endpoint and scrapes pages directly.
// No API key, no accounts.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: searchEndpoint,
	}
}

type result struct {
	URL     string
	Snippet string
}

// Search returns up to five "Source/Snippet" pairs as a single text block.
// Failures come back as marker strings, never errors: the caller feeds the
// outcome to a model either way.
func (d *DuckDuckGo) Search(ctx context.Context, query string) string {
	logger := log.FromCtx(ctx)

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ConnectivityFailure
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", core.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("query", query).Msg("web search request failed")
		if isConnectivityError(err) {
			return ConnectivityFailure
		}
		return NoResults
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Str("query", query).Msg("web search returned non-OK status")
		return NoResults
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return NoResults
	}

	results := parseResults(doc)
	if len(results) == 0 {
		return NoResults
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Source: %s\nSnippet: %s", r.URL, r.Snippet)
	}
	return sb.String()
}

// isConnectivityError separates "the network is down" from "the provider did
// not like us". Only the former warrants the honesty directive.
func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func parseResults(doc *html.Node) []result {
	var results []result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__body") {
			if r, ok := extractResult(n); ok {
				results = append(results, r)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func extractResult(body *html.Node) (result, bool) {
	var r result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a") && r.URL == "":
				r.URL = resolveRedirect(attr(n, "href"))
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = cleanSnippet(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return r, r.URL != "" && r.Snippet != ""
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= indirection to the real URL.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// snippetPolicy strips every tag; snippets carry <b> highlight markup.
var snippetPolicy = bluemonday.StrictPolicy()

// cleanSnippet reduces a snippet node to sanitized plain text.
func cleanSnippet(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return collapseSpace(textContent(n))
		}
	}
	clean := snippetPolicy.Sanitize(sb.String())
	return collapseSpace(stdhtml.UnescapeString(clean))
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
