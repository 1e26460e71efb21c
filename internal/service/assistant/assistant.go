// Package assistant coordinates one conversation: retrieval decisions,
// prompt assembly, streamed generation, and background memory updates.
package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/internal/service/memory"
	"github.com/lokality-ai/lokality/internal/service/planner"
	"github.com/lokality-ai/lokality/pkg/log"
)

const historyLimit = 20

type Assistant struct {
	repo      core.FactRepository
	ai        core.GenerationProvider
	search    core.SearchTransport
	plan      *planner.Planner
	extractor *memory.Extractor

	model         string
	contextWindow int
	now           func() time.Time

	mu           sync.Mutex
	messages     []core.Message
	systemPrompt string
	cachedPrompt string
	cachedGen    uint64
	haveCached   bool
	searchCache  map[string]string
}

type Config struct {
	Repo          core.FactRepository
	AI            core.GenerationProvider
	Search        core.SearchTransport
	Planner       *planner.Planner
	Extractor     *memory.Extractor
	Model         string
	ContextWindow int
	// Now overrides the clock, tests only.
	Now func() time.Time
}

func New(cfg Config) *Assistant {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Assistant{
		repo:          cfg.Repo,
		ai:            cfg.AI,
		search:        cfg.Search,
		plan:          cfg.Planner,
		extractor:     cfg.Extractor,
		model:         cfg.Model,
		contextWindow: cfg.ContextWindow,
		now:           now,
		searchCache:   make(map[string]string),
	}
}

// RefreshSystemPrompt rebuilds the persona prompt from the store. Without a
// query it reuses the cached generic prompt as long as the store generation
// has not moved.
func (a *Assistant) RefreshSystemPrompt(ctx context.Context, query string) error {
	gen := a.repo.Generation()

	if query == "" {
		a.mu.Lock()
		if a.haveCached && a.cachedGen == gen {
			a.systemPrompt = a.cachedPrompt
			a.mu.Unlock()
			return nil
		}
		a.mu.Unlock()
	}

	facts, err := a.repo.RelevantFacts(ctx, query)
	if err != nil {
		return fmt.Errorf("refresh system prompt: %w", err)
	}
	prompt := buildSystemPrompt(facts, a.now())

	a.mu.Lock()
	a.systemPrompt = prompt
	if query == "" {
		a.cachedPrompt = prompt
		a.cachedGen = gen
		a.haveCached = true
	}
	a.mu.Unlock()
	return nil
}

// buildMessages assembles the full chat transcript for one turn.
func (a *Assistant) buildMessages(input, searchContext string) []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	msgs := make([]core.Message, 0, len(a.messages)+3)
	msgs = append(msgs, core.Message{Role: core.RoleSystem, Content: a.systemPrompt})
	msgs = append(msgs, a.messages...)
	msgs = append(msgs, core.Message{Role: core.RoleUser, Content: input})
	if searchContext != "" {
		msgs = append(msgs, core.Message{Role: core.RoleSystem, Content: searchOverride(input, searchContext)})
	}
	return msgs
}

// Converse runs one complete turn: score the prompt, maybe search, stream
// the reply through onToken, then record the exchange. Memory extraction is
// dispatched in the background after the reply lands.
func (a *Assistant) Converse(ctx context.Context, input string, onToken func(token string) error) (string, error) {
	analysis := planner.Analyze(input)
	log.FromCtx(ctx).Debug().
		Float64("complexity", analysis.Score).
		Float64("creativity", analysis.Creativity).
		Str("level", string(analysis.Level)).
		Msg("prompt analysis")

	searchContext := a.DecideAndSearch(ctx, input, analysis.Level == planner.LevelMinimal)

	if err := a.RefreshSystemPrompt(ctx, input); err != nil {
		return "", err
	}

	numCtx := a.plan.SafeContextSize(ctx, a.model, a.contextWindow)
	if searchContext != "" && numCtx < 2048 {
		numCtx = a.plan.SafeContextSize(ctx, a.model, 2048)
	}

	opts := core.GenOptions{
		NumCtx:          numCtx,
		Temperature:     analysis.Params.Temperature,
		TopP:            analysis.Params.TopP,
		MinP:            analysis.Params.MinP,
		TopK:            analysis.Params.TopK,
		RepeatPenalty:   analysis.Params.RepeatPenalty,
		PresencePenalty: analysis.Params.PresencePenalty,
	}

	var response string
	err := a.ai.ChatStream(ctx, a.buildMessages(input, searchContext), opts, func(token string) error {
		response += token
		return onToken(token)
	})
	if err != nil {
		return "", fmt.Errorf("chat turn: %w", err)
	}

	a.recordTurn(input, response)
	a.UpdateMemoryAsync(ctx, input, response)
	return response, nil
}

func (a *Assistant) recordTurn(input, response string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = append(a.messages,
		core.Message{Role: core.RoleUser, Content: input},
		core.Message{Role: core.RoleAssistant, Content: response},
	)
	if len(a.messages) > historyLimit {
		a.messages = a.messages[len(a.messages)-historyLimit:]
	}
}

// UpdateMemoryAsync runs fact extraction off the conversation path. A
// successful mutation invalidates the cached system prompt.
func (a *Assistant) UpdateMemoryAsync(ctx context.Context, input, response string) {
	logger := log.FromCtx(ctx)
	go func() {
		updated, err := a.extractor.ExtractAndApply(context.WithoutCancel(ctx), input, response)
		if err != nil {
			logger.Error().Err(err).Msg("memory background task error")
			return
		}
		if updated {
			a.mu.Lock()
			a.haveCached = false
			a.mu.Unlock()
		}
		logger.Debug().Bool("updated", updated).Msg("memory processing for turn completed")
	}()
}

// ClearMemory wipes long-term memory and the prompt built from it.
func (a *Assistant) ClearMemory(ctx context.Context) error {
	if err := a.repo.Clear(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.haveCached = false
	a.mu.Unlock()
	return a.RefreshSystemPrompt(ctx, "")
}

// History returns a copy of the rolling transcript.
func (a *Assistant) History() []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// ResetConversation drops the short-term transcript, keeping long-term
// memory intact.
func (a *Assistant) ResetConversation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

// SystemPrompt returns the prompt currently in effect.
func (a *Assistant) SystemPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.systemPrompt
}
