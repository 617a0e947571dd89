package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
	name    TEXT PRIMARY KEY,
	payload TEXT NOT NULL
)`

// Schema version tracking:
// 1 - collections table
const currentSchemaVersion = 1

// SQLiteMedium is the durable local key-value medium: one row per collection
// name holding that collection's canonical JSON payload.
type SQLiteMedium struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// ":memory:" gives a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteMedium{db: db}, nil
}

// Close closes the database connection.
func (m *SQLiteMedium) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the collections table if it does not exist and stamps
// the schema version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (m *SQLiteMedium) verifyPragma(name, expected string) error {
	var value string
	if err := m.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Read returns the payload stored under name. found is false when the
// collection has never been written.
func (m *SQLiteMedium) Read(ctx context.Context, name string) (payload []byte, found bool, err error) {
	var text string
	err = m.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, name).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read collection %s: %w", name, err)
	}
	return []byte(text), true, nil
}

// Write replaces the payload stored under name. The upsert is a single
// statement, so readers see either the old or the new payload.
func (m *SQLiteMedium) Write(ctx context.Context, name string, payload []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO collections (name, payload)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload
	`, name, string(payload))
	if err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	return nil
}
