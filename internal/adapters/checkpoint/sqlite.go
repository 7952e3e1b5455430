package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/sieve/internal/domain/model"
	_ "modernc.org/sqlite"
)

// SQLite stores results in a results table keyed by id.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the status endpoint or an analyst read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	// One writer at a time; saves are serialized by the caller anyway.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
const currentSchemaVersion = 1

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []func() error{
		s.migrateV1, // v0 → v1: results table
	}
	if len(migrations) != currentSchemaVersion {
		return fmt.Errorf("have %d migrations for schema v%d", len(migrations), currentSchemaVersion)
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *SQLite) migrateV1() error {
	cols := make([]string, 0, len(Columns)+1)
	cols = append(cols, "pos INTEGER NOT NULL")
	for _, c := range Columns {
		if c == "id" {
			cols = append(cols, "id TEXT PRIMARY KEY")
			continue
		}
		cols = append(cols, quote(c)+" TEXT NOT NULL DEFAULT ''")
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS results (` + strings.Join(cols, ", ") + `);
	CREATE INDEX IF NOT EXISTS idx_results_pos ON results(pos);`)
	return err
}

// Load returns all rows in save order.
func (s *SQLite) Load(ctx context.Context) ([]model.Result, error) {
	quoted := make([]string, len(Columns))
	for i, c := range Columns {
		quoted[i] = quote(c)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(quoted, ", ")+` FROM results ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.Result
	vals := make([]string, len(Columns))
	ptrs := make([]any, len(Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	index := make(map[string]int, len(Columns))
	for i, c := range Columns {
		index[c] = i
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan row: %w", ErrMalformed, err)
		}
		r, err := decodeRow(func(col string) string { return vals[index[col]] })
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if err := validateIDs(results); err != nil {
		return nil, err
	}
	return results, nil
}

// Save upserts every result in one transaction. Rows are never deleted:
// the caller's buffer always holds everything previously loaded.
func (s *SQLite) Save(ctx context.Context, results []model.Result) error {
	if err := validateIDs(results); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL())
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for pos, r := range results {
		row := encodeRow(r)
		args := make([]any, 0, len(row)+1)
		args = append(args, pos)
		for _, v := range row {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func upsertSQL() string {
	cols := make([]string, 0, len(Columns)+1)
	marks := make([]string, 0, len(Columns)+1)
	sets := make([]string, 0, len(Columns))
	cols = append(cols, "pos")
	marks = append(marks, "?")
	sets = append(sets, "pos = excluded.pos")
	for _, c := range Columns {
		cols = append(cols, quote(c))
		marks = append(marks, "?")
		if c != "id" {
			sets = append(sets, quote(c)+" = excluded."+quote(c))
		}
	}
	return `INSERT INTO results (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") +
		`) ON CONFLICT(id) DO UPDATE SET ` + strings.Join(sets, ", ")
}

func quote(col string) string { return `"` + col + `"` }
