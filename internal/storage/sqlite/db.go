package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/lokality-ai/lokality/pkg/log"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// InMemory is the path for an ephemeral, test-only database.
const InMemory = ":memory:"

func openDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if dbPath != InMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=10000&_loc=UTC"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One shared connection, serialized by the store's mutex. This also keeps
	// an in-memory database from splitting across pool connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(log.NewGooseLoggerFromCtx(ctx))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// initFTS creates the full-text index and its sync triggers. FTS5 may not be
// compiled into the driver; the store degrades to LIKE scans in that case, so
// every statement here is best-effort.
func initFTS(ctx context.Context, db *sql.DB) bool {
	statements := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts
		 USING fts5(entity, fact, content='memory', content_rowid='id')`,
		`CREATE TRIGGER IF NOT EXISTS memory_ai AFTER INSERT ON memory BEGIN
			INSERT INTO memory_fts(rowid, entity, fact) VALUES (new.id, new.entity, new.fact);
		 END`,
		`CREATE TRIGGER IF NOT EXISTS memory_ad AFTER DELETE ON memory BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, entity, fact) VALUES ('delete', old.id, old.entity, old.fact);
		 END`,
		`CREATE TRIGGER IF NOT EXISTS memory_au AFTER UPDATE ON memory BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, entity, fact) VALUES ('delete', old.id, old.entity, old.fact);
			INSERT INTO memory_fts(rowid, entity, fact) VALUES (new.id, new.entity, new.fact);
		 END`,
		`INSERT INTO memory_fts(memory_fts) VALUES ('rebuild')`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.FromCtx(ctx).Debug().Err(err).Msg("fts5 unavailable, falling back to substring search")
			return false
		}
	}
	return true
}
