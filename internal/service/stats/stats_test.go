package stats

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lokality-ai/lokality/internal/core"
)

func TestHeuristicTokensEmpty(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
}

func TestHeuristicTokensGrowsWithLength(t *testing.T) {
	short := heuristicTokens("hello world")
	long := heuristicTokens(strings.Repeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestHeuristicTokensSymbolDensityBonus(t *testing.T) {
	prose := heuristicTokens("twelve characters of plain text here")
	code := heuristicTokens(`x := map[int]string{1: "a", 2: "b"}; y++`)
	// Equal-length code must cost more tokens than prose of the same length.
	assert.Greater(t, float64(code)/float64(len(`x := map[int]string{1: "a", 2: "b"}; y++`)),
		float64(prose)/float64(len("twelve characters of plain text here")))
}

type stubIntrospector struct {
	maxCtx   int
	sizeMB   int64
	vramMB   int64
	introErr error
}

func (s stubIntrospector) MaxContext(context.Context, string) (int, error) {
	return s.maxCtx, s.introErr
}

func (s stubIntrospector) ResidentModel(context.Context, string) (core.ModelResidency, error) {
	return core.ModelResidency{SizeMB: s.sizeMB, VRAMMB: s.vramMB}, s.introErr
}

type countRepo struct{ n int }

func (r countRepo) AddFact(context.Context, string, string) error           { return nil }
func (r countRepo) RemoveFact(context.Context, int64) error                 { return nil }
func (r countRepo) UpdateFact(context.Context, int64, string, string) error { return nil }
func (r countRepo) AllFacts(context.Context) ([]core.Fact, error)           { return nil, nil }
func (r countRepo) RelevantFacts(context.Context, string) ([]core.Fact, error) {
	return nil, nil
}
func (r countRepo) FactCount(context.Context) (int, error) { return r.n, nil }
func (r countRepo) Clear(context.Context) error            { return nil }
func (r countRepo) Generation() uint64                     { return 0 }

func TestCollectSplitsModelMemory(t *testing.T) {
	c := &Collector{
		Model: "gemma3:4b-it-qat",
		Repo:  countRepo{n: 4},
		Intr:  stubIntrospector{maxCtx: 8192, sizeMB: 4000, vramMB: 3200},
	}

	snap := c.Collect(context.Background(), "system prompt", nil)

	assert.Equal(t, "gemma3:4b-it-qat", snap.Model)
	assert.Equal(t, 4, snap.MemoryEntries)
	assert.Equal(t, int64(3200), snap.VRAMMB)
	assert.Equal(t, int64(800), snap.RAMMB)
}

func TestCollectContextPctCapped(t *testing.T) {
	c := &Collector{
		Model: "m",
		Repo:  countRepo{},
		Intr:  stubIntrospector{maxCtx: 64},
	}

	snap := c.Collect(context.Background(), strings.Repeat("words and more words. ", 200), nil)
	assert.Equal(t, 100.0, snap.ContextPct)
}

func TestCollectSurvivesRuntimeErrors(t *testing.T) {
	c := &Collector{
		Model: "m",
		Repo:  countRepo{n: 2},
		Intr:  stubIntrospector{introErr: assert.AnError},
	}

	snap := c.Collect(context.Background(), "prompt", []core.Message{{Role: core.RoleUser, Content: "hi"}})

	assert.Equal(t, 2, snap.MemoryEntries)
	assert.Zero(t, snap.VRAMMB)
	assert.Greater(t, snap.ContextPct, 0.0)
}
