package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

const extractionMaxTokens = 500

// Fillers whose presence alone makes a turn not worth an extraction call.
var trivialInputs = map[string]bool{
	"thanks": true, "thank": true, "ok": true, "okay": true, "cool": true,
	"nice": true, "hello": true, "hi": true, "bye": true, "yes": true,
	"no": true, "yep": true, "nope": true,
}

// Extractor turns finished conversation turns into durable fact mutations.
// It runs after the response is already on screen, so its latency and
// failures never touch the user-facing path.
type Extractor struct {
	repo   core.FactRepository
	ai     core.GenerationProvider
	numCtx func(ctx context.Context) int
}

// NewExtractor wires the extraction pipeline. numCtx supplies the safe
// context window for each model call.
func NewExtractor(repo core.FactRepository, ai core.GenerationProvider, numCtx func(ctx context.Context) int) *Extractor {
	return &Extractor{repo: repo, ai: ai, numCtx: numCtx}
}

type operation struct {
	Op     string `json:"op"`
	Entity string `json:"entity"`
	Fact   string `json:"fact"`
	ID     any    `json:"id"`
}

type opEnvelope struct {
	Operations []operation `json:"operations"`
}

// coerceID accepts the integer in whatever shape the model produced it.
func coerceID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case int:
		return int64(id), true
	case int64:
		return id, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// isTrivial skips extraction for throwaway turns. Anything of three or more
// words gets a look regardless of content.
func isTrivial(input string) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(input) {
		if r >= 'a' && r <= 'z' || r == ' ' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if len(strings.Fields(clean)) >= 3 {
		return false
	}
	return clean == "" || trivialInputs[clean]
}

// ExtractAndApply inspects one completed turn and commits any durable facts
// it yields. Returns whether the store changed.
func (e *Extractor) ExtractAndApply(ctx context.Context, userInput, assistantResponse string) (bool, error) {
	if isTrivial(userInput) {
		return false, nil
	}

	known, err := e.repo.RelevantFacts(ctx, userInput)
	if err != nil {
		return false, fmt.Errorf("fetch facts for extraction: %w", err)
	}

	raw, err := e.ai.Chat(ctx, []core.Message{
		{Role: core.RoleSystem, Content: extractionSystemPrompt},
		{Role: core.RoleUser, Content: extractionUserPrompt(userInput, assistantResponse, memoryListing(known))},
	}, core.GenOptions{
		Temperature: 0,
		NumPredict:  extractionMaxTokens,
		NumCtx:      e.numCtx(ctx),
		JSONFormat:  true,
	})
	if err != nil {
		return false, fmt.Errorf("memory extraction call: %w", err)
	}
	log.FromCtx(ctx).Debug().Str("response", log.Truncate(raw)).Msg("memory extraction raw response")

	var envelope opEnvelope
	if err := core.DecodeLoose(raw, &envelope); err != nil {
		log.FromCtx(ctx).Debug().Err(err).Msg("extraction response held no operations")
		return false, nil
	}

	updated := false
	for _, op := range envelope.Operations {
		applied, err := e.apply(ctx, op, known)
		if err != nil {
			return updated, err
		}
		if applied {
			updated = true
		}
	}
	return updated, nil
}

// apply commits a single validated operation. IDs referencing facts outside
// the fetched set are hallucinations and are dropped.
func (e *Extractor) apply(ctx context.Context, op operation, known []core.Fact) (bool, error) {
	entity := strings.TrimSpace(op.Entity)
	if entity == "" {
		entity = "The User"
	}
	fact := stripIDSuffix(op.Fact)

	id, hasID := coerceID(op.ID)
	exists := false
	if hasID {
		for _, f := range known {
			if f.ID == id {
				exists = true
				break
			}
		}
	}

	switch op.Op {
	case "add":
		if !ValidFactContent(fact) {
			return false, nil
		}
		norm := normalizeFact(fact)
		for _, f := range known {
			if strings.EqualFold(entity, f.Entity) && norm == normalizeFact(f.Fact) {
				return false, nil
			}
		}
		if err := e.repo.AddFact(ctx, entity, fact); err != nil {
			return false, err
		}
		return true, nil

	case "update":
		if !exists || fact == "" || !ValidFactContent(fact) {
			return false, nil
		}
		if err := e.repo.UpdateFact(ctx, id, entity, fact); err != nil {
			return false, err
		}
		return true, nil

	case "remove":
		if !exists {
			return false, nil
		}
		if err := e.repo.RemoveFact(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
