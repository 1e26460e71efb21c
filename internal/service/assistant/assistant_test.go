package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/internal/service/memory"
	"github.com/lokality-ai/lokality/internal/service/planner"
)

type memRepo struct {
	mu    sync.Mutex
	facts []core.Fact
	next  int64
	gen   uint64
}

func (r *memRepo) AddFact(_ context.Context, entity, fact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.facts = append(r.facts, core.Fact{ID: r.next, Entity: entity, Fact: fact})
	r.gen++
	return nil
}

func (r *memRepo) RemoveFact(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.facts {
		if f.ID == id {
			r.facts = append(r.facts[:i], r.facts[i+1:]...)
			r.gen++
			return nil
		}
	}
	return nil
}

func (r *memRepo) UpdateFact(_ context.Context, id int64, entity, fact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.facts {
		if f.ID == id {
			r.facts[i].Entity = entity
			r.facts[i].Fact = fact
			r.gen++
			return nil
		}
	}
	return nil
}

func (r *memRepo) AllFacts(context.Context) ([]core.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Fact(nil), r.facts...), nil
}

func (r *memRepo) RelevantFacts(ctx context.Context, _ string) ([]core.Fact, error) {
	return r.AllFacts(ctx)
}

func (r *memRepo) FactCount(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.facts), nil
}

func (r *memRepo) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = nil
	r.gen++
	return nil
}

func (r *memRepo) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// scriptedAI pops one canned response per Generate call and streams a fixed
// reply for chat turns.
type scriptedAI struct {
	mu        sync.Mutex
	responses []string
	reply     string
	genCalls  int
	chatCalls int
}

func (a *scriptedAI) Generate(context.Context, string, core.GenOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genCalls++
	if len(a.responses) == 0 {
		return `{"action": "done"}`, nil
	}
	resp := a.responses[0]
	a.responses = a.responses[1:]
	return resp, nil
}

func (a *scriptedAI) Chat(context.Context, []core.Message, core.GenOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatCalls++
	return `{"operations": []}`, nil
}

func (a *scriptedAI) ChatStream(_ context.Context, _ []core.Message, _ core.GenOptions, fn func(string) error) error {
	a.mu.Lock()
	a.chatCalls++
	reply := a.reply
	a.mu.Unlock()
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := fn(word); err != nil {
			return err
		}
	}
	return nil
}

type recordingSearch struct {
	mu       sync.Mutex
	searches []string
	scrapes  []string
	result   string
	page     string
}

func (s *recordingSearch) Search(_ context.Context, query string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, query)
	return s.result
}

func (s *recordingSearch) Scrape(_ context.Context, url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrapes = append(s.scrapes, url)
	return s.page
}

type fixedIntrospector struct{}

func (fixedIntrospector) MaxContext(context.Context, string) (int, error) { return 8192, nil }
func (fixedIntrospector) ResidentModel(context.Context, string) (core.ModelResidency, error) {
	return core.ModelResidency{}, nil
}

type noGPUProbe struct{}

func (noGPUProbe) Resources(context.Context) (int64, int64) { return 16384, 0 }

func newTestAssistant(ai *scriptedAI, search *recordingSearch) (*Assistant, *memRepo) {
	repo := &memRepo{}
	plan := planner.New(fixedIntrospector{}, noGPUProbe{})
	ex := memory.NewExtractor(repo, ai, func(context.Context) int { return 2048 })
	a := New(Config{
		Repo:          repo,
		AI:            ai,
		Search:        search,
		Planner:       plan,
		Extractor:     ex,
		Model:         "test-model",
		ContextWindow: 2048,
		Now:           func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) },
	})
	return a, repo
}

func TestDecideAndSearchFillerBypass(t *testing.T) {
	ai := &scriptedAI{}
	a, _ := newTestAssistant(ai, &recordingSearch{})

	out := a.DecideAndSearch(context.Background(), "hi", true)

	assert.Empty(t, out)
	assert.Zero(t, ai.genCalls, "filler turn must not reach the model")
}

func TestDecideAndSearchFillerStillDecidesWithoutSkip(t *testing.T) {
	ai := &scriptedAI{responses: []string{`{"action": "done"}`}}
	a, _ := newTestAssistant(ai, &recordingSearch{})

	a.DecideAndSearch(context.Background(), "hi", false)
	assert.Equal(t, 1, ai.genCalls)
}

func TestDecideAndSearchComposesDatedQuery(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "oslo weather"}`,
		`{"action": "done"}`,
	}}
	search := &recordingSearch{result: "Source: https://a\nSnippet: sunny"}
	a, _ := newTestAssistant(ai, search)

	out := a.DecideAndSearch(context.Background(), "what is the weather in Oslo?", false)

	require.Len(t, search.searches, 1)
	assert.Equal(t, "oslo weather 2026-09-01", search.searches[0])
	assert.True(t, strings.HasPrefix(out, "--- Search for 'oslo weather 2026-09-01' ---\n"), out)
}

func TestDecideAndSearchCachesComposedQuery(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "btc price"}`,
		`{"action": "done"}`,
		`{"action": "search", "query": "btc price"}`,
	}}
	search := &recordingSearch{result: "Source: x\nSnippet: y"}
	a, _ := newTestAssistant(ai, search)

	first := a.DecideAndSearch(context.Background(), "bitcoin price?", false)
	second := a.DecideAndSearch(context.Background(), "bitcoin price?", false)

	assert.Equal(t, first, second)
	assert.Len(t, search.searches, 1, "same composed query must hit the transport once")
}

func TestDecideAndSearchEmptyQueryFallsBackToInput(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": ""}`,
		`{"action": "done"}`,
	}}
	search := &recordingSearch{result: "Source: x\nSnippet: y"}
	a, _ := newTestAssistant(ai, search)

	a.DecideAndSearch(context.Background(), "latest Go release", false)

	require.Len(t, search.searches, 1)
	assert.Equal(t, "latest Go release 2026-09-01", search.searches[0])
}

func TestDecideAndSearchPropagatesConnectivityMarker(t *testing.T) {
	marker := "CRITICAL: Web search failed due to a connectivity issue (Internet might be down). You MUST inform the user you cannot check real-time data right now."
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "news"}`,
		`{"action": "done"}`,
	}}
	search := &recordingSearch{result: marker}
	a, _ := newTestAssistant(ai, search)

	out := a.DecideAndSearch(context.Background(), "any news today?", false)
	assert.Contains(t, out, marker)
}

func TestDecideAndSearchScrapeFailureKeepsSnippets(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "release notes"}`,
		`not json at all`,
	}}
	search := &recordingSearch{result: "Source: https://x\nSnippet: v2 shipped"}
	a, _ := newTestAssistant(ai, search)

	out := a.DecideAndSearch(context.Background(), "what shipped in v2?", false)

	assert.Contains(t, out, "v2 shipped")
	assert.Empty(t, search.scrapes)
}

func TestDecideAndSearchScrapesAndDistills(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "release notes"}`,
		`{"action": "scrape", "url": "https://x/notes"}`,
		`v2 adds streaming support`,
	}}
	search := &recordingSearch{result: "Source: https://x/notes\nSnippet: v2", page: "long page text"}
	a, _ := newTestAssistant(ai, search)

	out := a.DecideAndSearch(context.Background(), "what shipped in v2?", false)

	assert.Equal(t, []string{"https://x/notes"}, search.scrapes)
	assert.Contains(t, out, "--- RELEVANT DATA FROM https://x/notes ---\nv2 adds streaming support")
}

func TestDecideAndSearchRejectsNonHTTPScrapeURL(t *testing.T) {
	ai := &scriptedAI{responses: []string{
		`{"action": "search", "query": "q"}`,
		`{"action": "scrape", "url": "ftp://x"}`,
	}}
	search := &recordingSearch{result: "Source: x\nSnippet: y"}
	a, _ := newTestAssistant(ai, search)

	a.DecideAndSearch(context.Background(), "find the file", false)
	assert.Empty(t, search.scrapes)
}

func TestConverseStreamsAndRecordsHistory(t *testing.T) {
	ai := &scriptedAI{reply: "Hello right back."}
	a, _ := newTestAssistant(ai, &recordingSearch{})

	var streamed strings.Builder
	resp, err := a.Converse(context.Background(), "hi", func(tok string) error {
		streamed.WriteString(tok)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello right back.", resp)
	assert.Equal(t, resp, streamed.String())

	hist := a.History()
	require.Len(t, hist, 2)
	assert.Equal(t, core.RoleUser, hist[0].Role)
	assert.Equal(t, "hi", hist[0].Content)
	assert.Equal(t, core.RoleAssistant, hist[1].Role)
}

func TestConverseTrimsHistory(t *testing.T) {
	ai := &scriptedAI{reply: "ok then"}
	a, _ := newTestAssistant(ai, &recordingSearch{})

	for i := 0; i < 15; i++ {
		_, err := a.Converse(context.Background(), fmt.Sprintf("turn %d", i), func(string) error { return nil })
		require.NoError(t, err)
	}

	hist := a.History()
	assert.Len(t, hist, historyLimit)
	assert.Equal(t, "turn 5", hist[0].Content)
}

func TestRefreshSystemPromptCachesOnGeneration(t *testing.T) {
	a, repo := newTestAssistant(&scriptedAI{}, &recordingSearch{})

	require.NoError(t, repo.AddFact(context.Background(), "User", "Lives in Oslo"))
	require.NoError(t, a.RefreshSystemPrompt(context.Background(), ""))
	first := a.SystemPrompt()
	assert.Contains(t, first, "- User: Lives in Oslo")

	// Unchanged generation reuses the cached prompt.
	require.NoError(t, a.RefreshSystemPrompt(context.Background(), ""))
	assert.Equal(t, first, a.SystemPrompt())

	// A mutation invalidates it.
	require.NoError(t, repo.AddFact(context.Background(), "User", "Plays chess"))
	require.NoError(t, a.RefreshSystemPrompt(context.Background(), ""))
	assert.Contains(t, a.SystemPrompt(), "Plays chess")
}

func TestClearMemoryResetsPrompt(t *testing.T) {
	a, repo := newTestAssistant(&scriptedAI{}, &recordingSearch{})

	require.NoError(t, repo.AddFact(context.Background(), "User", "Lives in Oslo"))
	require.NoError(t, a.RefreshSystemPrompt(context.Background(), ""))
	require.NoError(t, a.ClearMemory(context.Background()))

	assert.NotContains(t, a.SystemPrompt(), "Lives in Oslo")
	count, err := repo.FactCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
