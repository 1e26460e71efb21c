package core

import "context"

// FactRepository is the long-term memory contract. The store performs no
// automatic deduplication; the extractor dedups before insertion. Mutations
// made by a background extraction pass become visible to later turns only
// (eventual consistency); Generation lets callers detect that the fact set
// moved without re-reading it.
type FactRepository interface {
	AddFact(ctx context.Context, entity, fact string) error
	RemoveFact(ctx context.Context, id int64) error
	UpdateFact(ctx context.Context, id int64, entity, fact string) error
	AllFacts(ctx context.Context) ([]Fact, error)
	RelevantFacts(ctx context.Context, query string) ([]Fact, error)
	FactCount(ctx context.Context) (int, error)
	// Clear resets the store to empty. The store must stay usable afterwards.
	Clear(ctx context.Context) error
	Generation() uint64
}
