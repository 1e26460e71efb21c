// Package stats reports resource usage of the running assistant: model
// memory footprint, stored fact count, and estimated context consumption.
package stats

import (
	"context"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

// Snapshot is one point-in-time view of the assistant's resource usage.
type Snapshot struct {
	Model         string
	MemoryEntries int
	RAMMB         int64
	VRAMMB        int64
	ContextPct    float64
}

// Collector gathers snapshots. All fields are required.
type Collector struct {
	Model string
	Repo  core.FactRepository
	Intr  core.ModelIntrospector
}

// Collect builds a snapshot from the store and the model runtime. Runtime
// probes are best effort, a stopped model just reports zeros.
func (c *Collector) Collect(ctx context.Context, systemPrompt string, messages []core.Message) Snapshot {
	snap := Snapshot{Model: c.Model}

	if count, err := c.Repo.FactCount(ctx); err == nil {
		snap.MemoryEntries = count
	}

	if res, err := c.Intr.ResidentModel(ctx, c.Model); err == nil {
		snap.VRAMMB = res.VRAMMB
		if ram := res.SizeMB - res.VRAMMB; ram > 0 {
			snap.RAMMB = ram
		}
	} else {
		log.FromCtx(ctx).Debug().Err(err).Msg("model residency unavailable for stats")
	}

	maxCtx, err := c.Intr.MaxContext(ctx, c.Model)
	if err != nil || maxCtx <= 0 {
		maxCtx = 8192
	}

	total := EstimateTokens(systemPrompt)
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	snap.ContextPct = float64(total) / float64(maxCtx) * 100
	if snap.ContextPct > 100 {
		snap.ContextPct = 100
	}

	return snap
}
