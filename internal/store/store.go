package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Per-dialect schemas, embedded at compile time. The schema is the single
// source of truth for the routes and samples tables.
//
//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB wraps a SQL database connection for either SQLite or Postgres.
// SQLite writes are serialized through a mutex to prevent transaction
// conflicts between the collector and the web process.
type DB struct {
	conn    *sql.DB
	dialect dialect
	writeMu sync.Mutex
}

// Open connects to the database named by databaseURL. URLs starting with
// postgres:// or postgresql:// select the pgx driver; anything else is
// treated as a SQLite path (an optional sqlite:// prefix is stripped).
func Open(databaseURL string) (*DB, error) {
	var conn *sql.DB
	var dia dialect
	var err error

	switch {
	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		dia = dialectPostgres
		conn, err = sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)
	default:
		dia = dialectSQLite
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		dsn := path + "?_journal=WAL&_fk=1&_busy_timeout=5000"
		conn, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLite only supports one writer at a time; a single connection
		// plus the write mutex avoids "database is locked" errors when the
		// collector and API touch the file concurrently.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(time.Hour)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dia == dialectSQLite {
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			log.Printf("Warning: failed to enable foreign keys: %v", err)
		}
	}

	return &DB{conn: conn, dialect: dia}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureSchema creates tables and indexes if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	schema := schemaSQLite
	if db.dialect == dialectPostgres {
		schema = schemaPostgres
	}

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to the $n form Postgres expects.
// Queries in this package are written with ? and rebound per dialect.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatTS renders a timestamp the way both schemas store it: RFC3339 in UTC,
// which sorts and compares lexicographically in timestamp order.
func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
