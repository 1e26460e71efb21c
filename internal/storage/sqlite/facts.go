package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
	"github.com/lokality-ai/lokality/pkg/retry"
)

const (
	relevantFactsCap = 20
	keywordMatchCap  = 10
	identityCap      = 10
)

// identityEntities anchor persona continuity; facts about them are always
// included in retrieval regardless of query relevance.
var identityEntities = []string{
	"User", "Assistant", "The User", "The Assistant", core.AssistantName,
}

// FactStore is the durable long-term memory. A single shared connection is
// guarded by one mutex; writes retry on transient lock contention and any
// other error surfaces immediately.
type FactStore struct {
	path string

	mu  sync.Mutex
	db  *sql.DB
	fts bool

	gen     atomic.Uint64
	retrier *retry.Retrier
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// NewFactStore opens (or creates) the store at dbPath. An unreadable or
// corrupted file is renamed with a timestamped .bak suffix and replaced by a
// fresh schema: losing memory is preferred over failing to start, and the
// artifact is preserved for forensics.
func NewFactStore(ctx context.Context, dbPath string) (*FactStore, error) {
	s := &FactStore{
		path: dbPath,
		retrier: retry.NewRetrier(&retry.Config{
			MaxAttempts: 5,
			Backoff:     retry.Linear(100 * time.Millisecond),
			Retryable:   isBusy,
		}),
	}

	db, err := openDB(ctx, dbPath)
	if err != nil {
		if dbPath == InMemory {
			return nil, err
		}
		log.FromCtx(ctx).Error().Err(err).Msg("database initialization failed, resetting")
		if bakErr := s.backupCorrupted(ctx); bakErr != nil {
			return nil, fmt.Errorf("could not reset database: %w", bakErr)
		}
		db, err = openDB(ctx, dbPath)
		if err != nil {
			return nil, fmt.Errorf("could not reset database: %w", err)
		}
	}

	s.db = db
	s.fts = initFTS(ctx, db)
	return s, nil
}

func (s *FactStore) backupCorrupted(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return nil
	}
	bakPath := fmt.Sprintf("%s.%d.bak", s.path, time.Now().Unix())
	if err := os.Rename(s.path, bakPath); err != nil {
		return err
	}
	log.FromCtx(ctx).Warn().Str("backup", bakPath).Msg("database corruption detected, original moved aside")
	return nil
}

func (s *FactStore) conn() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Generation is a monotonic counter bumped on every successful mutation.
// Callers cache derived state (like a rendered system prompt) against it.
func (s *FactStore) Generation() uint64 {
	return s.gen.Load()
}

func (s *FactStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *FactStore) write(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := s.retrier.Do(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

func (s *FactStore) AddFact(ctx context.Context, entity, fact string) error {
	_, err := s.write(ctx, `INSERT INTO memory (entity, fact) VALUES (?, ?)`, entity, fact)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("failed to add fact")
		return fmt.Errorf("add fact: %w", err)
	}
	s.gen.Add(1)
	return nil
}

// RemoveFact deletes a fact. A missing id is a no-op, not an error; callers
// validate existence against the fact set they fetched for the turn.
func (s *FactStore) RemoveFact(ctx context.Context, id int64) error {
	affected, err := s.write(ctx, `DELETE FROM memory WHERE id = ?`, id)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Int64("id", id).Msg("failed to remove fact")
		return fmt.Errorf("remove fact: %w", err)
	}
	if affected > 0 {
		s.gen.Add(1)
	}
	return nil
}

// UpdateFact rewrites a fact in place. A missing id is a no-op.
func (s *FactStore) UpdateFact(ctx context.Context, id int64, entity, fact string) error {
	affected, err := s.write(ctx, `UPDATE memory SET entity = ?, fact = ? WHERE id = ?`, entity, fact, id)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Int64("id", id).Msg("failed to update fact")
		return fmt.Errorf("update fact: %w", err)
	}
	if affected > 0 {
		s.gen.Add(1)
	}
	return nil
}

func scanFacts(rows *sql.Rows) ([]core.Fact, error) {
	defer rows.Close()
	var facts []core.Fact
	for rows.Next() {
		var f core.Fact
		if err := rows.Scan(&f.ID, &f.Entity, &f.Fact, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// AllFacts returns every fact ordered by entity, then creation order.
func (s *FactStore) AllFacts(ctx context.Context) ([]core.Fact, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT id, entity, fact, created_at FROM memory ORDER BY entity, created_at`)
	if err != nil {
		return nil, fmt.Errorf("fetch all facts: %w", err)
	}
	return scanFacts(rows)
}

func (s *FactStore) FactCount(ctx context.Context) (int, error) {
	var count int
	err := s.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM memory`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return count, nil
}

func (s *FactStore) identityFacts(ctx context.Context) []core.Fact {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identityEntities)), ",")
	args := make([]any, len(identityEntities)+1)
	for i, e := range identityEntities {
		args[i] = e
	}
	args[len(identityEntities)] = identityCap

	rows, err := s.conn().QueryContext(ctx,
		`SELECT id, entity, fact, created_at FROM memory
		 WHERE entity IN (`+placeholders+`)
		 ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil
	}
	facts, err := scanFacts(rows)
	if err != nil {
		return nil
	}
	return facts
}

func (s *FactStore) keywordFacts(ctx context.Context, query string) []core.Fact {
	keywords := queryKeywords(query)
	if len(keywords) == 0 {
		return nil
	}

	if s.ftsEnabled() {
		if facts, err := s.matchFacts(ctx, keywords); err == nil {
			return facts
		}
	}
	return s.likeFacts(ctx, keywords)
}

func (s *FactStore) ftsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fts
}

func (s *FactStore) matchFacts(ctx context.Context, keywords []string) ([]core.Fact, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT m.id, m.entity, m.fact, m.created_at
		 FROM memory_fts f JOIN memory m ON m.id = f.rowid
		 WHERE memory_fts MATCH ? ORDER BY f.rank LIMIT ?`,
		strings.Join(keywords, " OR "), keywordMatchCap)
	if err != nil {
		return nil, err
	}
	return scanFacts(rows)
}

// likeFacts is the degraded path for builds without FTS5: a substring scan
// ordered by recency.
func (s *FactStore) likeFacts(ctx context.Context, keywords []string) []core.Fact {
	clauses := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)*2+1)
	for _, k := range keywords {
		clauses = append(clauses, "(fact LIKE ? OR entity LIKE ?)")
		pattern := "%" + k + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, keywordMatchCap)

	rows, err := s.conn().QueryContext(ctx,
		`SELECT id, entity, fact, created_at FROM memory
		 WHERE `+strings.Join(clauses, " OR ")+`
		 ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil
	}
	facts, err := scanFacts(rows)
	if err != nil {
		return nil
	}
	return facts
}

// RelevantFacts returns identity facts first, then keyword matches for the
// query, deduplicated case-insensitively and capped at 20.
func (s *FactStore) RelevantFacts(ctx context.Context, query string) ([]core.Fact, error) {
	facts := s.identityFacts(ctx)
	if query != "" {
		facts = append(facts, s.keywordFacts(ctx, query)...)
	}

	seen := make(map[[2]string]struct{}, len(facts))
	unique := make([]core.Fact, 0, len(facts))
	for _, f := range facts {
		key := [2]string{strings.ToLower(f.Entity), strings.ToLower(f.Fact)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, f)
		if len(unique) == relevantFactsCap {
			break
		}
	}
	return unique, nil
}

// Clear destroys and recreates the backing store so both the table and the
// full-text index restart from a clean, non-fragmented state.
func (s *FactStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	removed := true
	if s.path != InMemory {
		for _, ext := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(s.path + ext); err != nil && !os.IsNotExist(err) {
				log.FromCtx(ctx).Warn().Err(err).Msg("failed to delete database file")
				removed = false
			}
		}
	}

	db, err := openDB(ctx, s.path)
	if err != nil {
		return fmt.Errorf("reinit after clear: %w", err)
	}
	if !removed {
		// Fallback when the files could not be deleted: empty the table instead.
		if _, err := db.ExecContext(ctx, `DELETE FROM memory`); err != nil {
			db.Close()
			return fmt.Errorf("clear fallback: %w", err)
		}
	}
	s.db = db
	s.fts = initFTS(ctx, db)
	s.gen.Add(1)
	log.FromCtx(ctx).Debug().Msg("memory store cleared")
	return nil
}
