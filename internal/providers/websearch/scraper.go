package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/inbucket/html2text"
	"golang.org/x/net/html"

	"github.com/lokality-ai/lokality/pkg/log"
)

const (
	maxPageBytes = 1 << 20
	maxPageChars = 8000
)

// chrome prunes the page down to article content before text extraction.
var chromeTags = map[string]bool{
	"script": true,
	"style":  true,
	"header": true,
	"footer": true,
	"nav":    true,
	"aside":  true,
	"form":   true,
}

// Scrape fetches a page and reduces it to plain text capped at 8000 chars.
// Errors become an inline marker so a failed scrape degrades the answer
// instead of aborting the turn.
func (d *DuckDuckGo) Scrape(ctx context.Context, pageURL string) string {
	text, err := d.fetchText(ctx, pageURL)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("url", pageURL).Msg("page scrape failed")
		return fmt.Sprintf("Failed to scrape URL '%s': %v", pageURL, err)
	}
	return text
}

func (d *DuckDuckGo) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	// Some sites block obvious bots; present as a regular browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	pruneChrome(doc)

	var rendered strings.Builder
	if err := html.Render(&rendered, doc); err != nil {
		return "", err
	}

	text, err := html2text.FromString(rendered.String(), html2text.Options{TextOnly: true})
	if err != nil {
		return "", err
	}

	text = collapseSpace(text)
	if text == "" {
		return "", fmt.Errorf("no readable text")
	}
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	return text, nil
}

func pruneChrome(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && chromeTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		pruneChrome(c)
	}
}
