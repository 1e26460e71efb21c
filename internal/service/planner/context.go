package planner

import (
	"context"
	"sync"
	"time"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

const (
	minContextTokens = 512
	osReserveMB      = 256
	residentCacheTTL = 60 * time.Second
)

type residentEntry struct {
	sizeMB  int64
	expires time.Time
}

// Planner bounds requested context windows by what the GPU can actually
// hold next to the already resident model. Oversized num_ctx on a full card
// silently spills to CPU and tanks generation speed.
type Planner struct {
	intr  core.ModelIntrospector
	probe ResourceProbe

	mu       sync.Mutex
	vramMB   int64
	probed   bool
	maxCtx   map[string]int
	resident map[string]residentEntry
}

func New(intr core.ModelIntrospector, probe ResourceProbe) *Planner {
	return &Planner{
		intr:     intr,
		probe:    probe,
		maxCtx:   make(map[string]int),
		resident: make(map[string]residentEntry),
	}
}

// totalVRAM is probed once per process. Hardware does not change under us.
func (p *Planner) totalVRAM(ctx context.Context) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.probed {
		_, p.vramMB = p.probe.Resources(ctx)
		p.probed = true
	}
	return p.vramMB
}

// modelMaxContext caches the model's native limit indefinitely.
func (p *Planner) modelMaxContext(ctx context.Context, model string) int {
	p.mu.Lock()
	if max, ok := p.maxCtx[model]; ok {
		p.mu.Unlock()
		return max
	}
	p.mu.Unlock()

	max, err := p.intr.MaxContext(ctx, model)
	if err != nil || max <= 0 {
		log.FromCtx(ctx).Debug().Err(err).Str("model", model).Msg("model context limit unavailable, assuming 8192")
		max = 8192
	}

	p.mu.Lock()
	p.maxCtx[model] = max
	p.mu.Unlock()
	return max
}

// residentSize caches the loaded model footprint for a minute. Polling
// ollama ps on every turn is wasteful and the figure moves slowly.
func (p *Planner) residentSize(ctx context.Context, model string) int64 {
	now := time.Now()

	p.mu.Lock()
	if e, ok := p.resident[model]; ok && now.Before(e.expires) {
		p.mu.Unlock()
		return e.sizeMB
	}
	p.mu.Unlock()

	var sizeMB int64
	res, err := p.intr.ResidentModel(ctx, model)
	if err != nil {
		log.FromCtx(ctx).Debug().Err(err).Msg("resident model size unavailable")
	} else {
		sizeMB = res.SizeMB
	}

	p.mu.Lock()
	p.resident[model] = residentEntry{sizeMB: sizeMB, expires: now.Add(residentCacheTTL)}
	p.mu.Unlock()
	return sizeMB
}

// SafeContextSize clamps the requested token window to the model's native
// limit and to what fits in remaining VRAM, never below the floor. With no
// detectable GPU the hardware bound is skipped.
func (p *Planner) SafeContextSize(ctx context.Context, model string, requested int) int {
	allowed := requested

	if max := p.modelMaxContext(ctx, model); allowed > max {
		allowed = max
	}

	if vram := p.totalVRAM(ctx); vram > 0 {
		free := vram - p.residentSize(ctx, model) - osReserveMB
		if free < 0 {
			free = 0
		}
		// 0.7 of headroom at 0.25 MB/token is an exact 14/5 ratio; integer
		// math avoids float truncation shaving a token off the budget.
		budget := int(free) * 14 / 5
		if allowed > budget {
			allowed = budget
		}
	}

	if allowed < minContextTokens {
		allowed = minContextTokens
	}
	return allowed
}
