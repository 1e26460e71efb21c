package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

const (
	decisionMaxTokens = 200
	distillMaxTokens  = 500
	scrapeCtxRequest  = 4096
)

// Greetings that never warrant a retrieval decision on low-effort turns.
var searchFiller = map[string]bool{
	"hi": true, "hello": true, "hey": true, "thanks": true,
	"ok": true, "yes": true, "no": true,
}

func isSearchFiller(input string) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(input) {
		if r >= 'a' && r <= 'z' || r == ' ' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	return searchFiller[clean] && len(input) < 10
}

// recentContext renders the last two turns with contents clipped, enough to
// anchor a decision without blowing the prompt up.
func (a *Assistant) recentContext() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.messages) - 2
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, m := range a.messages[start:] {
		content := m.Content
		if len(content) > 150 {
			content = content[:150]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
	}
	return strings.Join(lines, "\n")
}

func (a *Assistant) searchDecision(ctx context.Context, input string) (core.SearchDecision, error) {
	now := a.now()

	facts, err := a.repo.RelevantFacts(ctx, input)
	if err != nil {
		return core.SearchDecision{}, err
	}
	var memLines []string
	for _, f := range facts {
		memLines = append(memLines, fmt.Sprintf("%s: %s", f.Entity, f.Fact))
	}

	prompt := fmt.Sprintf(
		"Date: %s, Time: %s\n"+
			"Memory: %s\n"+
			"History: %s\n"+
			"User: %s\n\n"+
			"Task: Decide if a web search is NECESSARY. Rules:\n"+
			"1. SEARCH for updates, news, or dynamic info.\n"+
			"2. NEVER SEARCH for current time/date.\n"+
			"3. STATIC facts (math, logic) do not need search.\n\n"+
			"Return JSON: {\"action\": \"search\", \"query\": \"...\"} "+
			"OR {\"action\": \"done\"}",
		now.Format("2006-01-02"), now.Format("15:04:05"),
		strings.Join(memLines, "; "), a.recentContext(), input,
	)

	raw, err := a.ai.Generate(ctx, prompt, core.GenOptions{
		Temperature: 0,
		NumPredict:  decisionMaxTokens,
		NumCtx:      a.plan.SafeContextSize(ctx, a.model, a.contextWindow),
		JSONFormat:  true,
	})
	if err != nil {
		return core.SearchDecision{}, err
	}
	log.FromCtx(ctx).Debug().Str("response", log.Truncate(raw)).Msg("search decision raw")
	return core.ParseSearchDecision(raw)
}

// deepen decides whether one of the found pages must be read in full and,
// if so, scrapes and distills it. Returns "" when snippets suffice.
func (a *Assistant) deepen(ctx context.Context, input, results string) (string, error) {
	prompt := fmt.Sprintf(
		"CONTEXT: %s\nUSER: %s\n\n"+
			"SNIPPETS:\n%s\n\n"+
			"TASK: Is scraping a URL needed for 100%% accuracy?\n"+
			"Return JSON: {\"action\": \"scrape\", \"url\": \"...\"} "+
			"OR {\"action\": \"done\"}",
		a.recentContext(), input, results,
	)

	raw, err := a.ai.Generate(ctx, prompt, core.GenOptions{
		Temperature: 0,
		NumPredict:  decisionMaxTokens,
		NumCtx:      a.plan.SafeContextSize(ctx, a.model, scrapeCtxRequest),
		JSONFormat:  true,
	})
	if err != nil {
		return "", err
	}

	decision, err := core.ParseScrapeDecision(raw)
	if err != nil || !decision.Scrape || !strings.HasPrefix(decision.URL, "http") {
		return "", err
	}

	pageText := a.search.Scrape(ctx, decision.URL)
	return a.distill(ctx, input, decision.URL, pageText)
}

// distill compresses a scraped page down to the facts that answer the
// original question.
func (a *Assistant) distill(ctx context.Context, input, url, pageText string) (string, error) {
	prompt := fmt.Sprintf(
		"WHY WE SEARCHED: %s\n\n"+
			"RAW CONTENT FROM %s:\n%s\n\n"+
			"TASK: Extract ONLY the facts that help answer 'WHY WE SEARCHED'.",
		input, url, pageText,
	)

	info, err := a.ai.Generate(ctx, prompt, core.GenOptions{
		Temperature: 0,
		NumPredict:  distillMaxTokens,
		NumCtx:      a.plan.SafeContextSize(ctx, a.model, scrapeCtxRequest),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("\n\n--- RELEVANT DATA FROM %s ---\n%s", url, info), nil
}

// DecideAndSearch runs the retrieval pipeline for one turn. Empty return
// means the turn proceeds on internal knowledge alone. skipLLM bypasses the
// decision call entirely for filler turns.
func (a *Assistant) DecideAndSearch(ctx context.Context, input string, skipLLM bool) string {
	if skipLLM && isSearchFiller(input) {
		return ""
	}

	decision, err := a.searchDecision(ctx, input)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("search decision failed")
		return ""
	}
	if !decision.Search {
		return ""
	}
	return a.performSearch(ctx, input, decision.Query)
}

func (a *Assistant) performSearch(ctx context.Context, input, decidedQuery string) string {
	base := strings.TrimSpace(decidedQuery)
	if base == "" {
		base = input
	}
	// Today's date in the query keeps engines biased toward fresh pages, and
	// doubles as the cache key's freshness bound.
	query := fmt.Sprintf("%s %s", base, a.now().Format("2006-01-02"))

	a.mu.Lock()
	cached, hit := a.searchCache[query]
	a.mu.Unlock()
	if hit {
		log.FromCtx(ctx).Debug().Str("query", query).Msg("search cache hit")
		return cached
	}

	results := a.search.Search(ctx, query)

	// Scrape failures degrade to snippets, never discard them.
	extra, err := a.deepen(ctx, input, results)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("scrape stage failed, keeping snippets")
	} else {
		results += extra
	}

	full := fmt.Sprintf("--- Search for '%s' ---\n%s", query, results)

	a.mu.Lock()
	a.searchCache[query] = full
	a.mu.Unlock()
	return full
}
