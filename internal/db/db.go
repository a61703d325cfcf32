// Package db persists run reports, fix records and run events. SQLite is the
// default backend; a postgres:// DSN selects Postgres through pgx.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL backend behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// DialectFor picks the backend for a DSN.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// timeFormat is how every timestamp column is stored.
const timeFormat = "2006-01-02 15:04:05"

// DB wraps the database connection.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open opens or creates the database named by dsn: a SQLite file path (or
// ":memory:") or a postgres:// URL.
func Open(dsn string) (*DB, error) {
	dialect := DialectFor(dsn)
	if dialect == SQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", dsn, err)
		}
	}

	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dialect == SQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return &DB{conn: conn, dialect: dialect, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Dialect reports the backend in use.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind rewrites ? placeholders into the backend's form. A ? inside a
// single-quoted literal is left alone; '' inside a literal is an escaped quote.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	inLiteral := false
	for _, r := range query {
		switch {
		case r == '\'':
			// '' toggles twice and so stays inside the literal
			inLiteral = !inLiteral
		case r == '?' && !inLiteral:
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(timeFormat)
}

// schemaV1 uses {{serial}} and {{bool}} for the types that differ between backends.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id             TEXT PRIMARY KEY,
    repo_url           TEXT NOT NULL,
    team_name          TEXT NOT NULL,
    leader_name        TEXT NOT NULL,
    branch             TEXT NOT NULL,
    status             TEXT NOT NULL CHECK(status IN ('PASSED','FAILED','NO_TESTS')),
    final_status       TEXT NOT NULL,
    language           TEXT,
    install_cmd        TEXT,
    test_cmd           TEXT,
    test_score         INTEGER NOT NULL DEFAULT 0,
    iterations         INTEGER NOT NULL DEFAULT 0,
    total_fixes        INTEGER NOT NULL DEFAULT 0,
    total_failures     INTEGER NOT NULL DEFAULT 0,
    score_base         INTEGER NOT NULL,
    speed_bonus        INTEGER NOT NULL,
    efficiency_penalty INTEGER NOT NULL,
    score_final        INTEGER NOT NULL,
    duration_ms        BIGINT NOT NULL,
    published          {{bool}} NOT NULL DEFAULT FALSE,
    commit_hash        TEXT,
    pr_url             TEXT,
    started_at         TEXT NOT NULL,
    finished_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS fix_records (
    id          {{serial}},
    run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    file        TEXT NOT NULL,
    bug_type    TEXT NOT NULL,
    line        INTEGER NOT NULL DEFAULT 0,
    commit_msg  TEXT,
    status      TEXT NOT NULL CHECK(status IN ('Fixed','Failed')),
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fix_run ON fix_records(run_id, seq);

CREATE TABLE IF NOT EXISTS run_events (
    id          {{serial}},
    run_id      TEXT NOT NULL,
    event       TEXT NOT NULL,
    stage       TEXT,
    iteration   INTEGER,
    detail      TEXT,
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_run ON run_events(run_id, id);
`

func (d *DB) schema() string {
	serial, boolean := "INTEGER PRIMARY KEY AUTOINCREMENT", "BOOLEAN"
	if d.dialect == Postgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return strings.NewReplacer("{{serial}}", serial, "{{bool}}", boolean).Replace(schemaV1)
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(d.schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), d.timestamp()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"fix_records", "run_events", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
