package engine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DefaultBusyTimeout is the busy_timeout (milliseconds) applied by ApplyPragmas.
const DefaultBusyTimeout = 5000

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./features.db". For in-memory
// databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// ApplyPragmas enables WAL journaling, a busy timeout and NORMAL synchronous
// mode on the provided database. In-memory databases silently keep their
// "memory" journal mode.
func ApplyPragmas(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("engine: db is nil")
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", DefaultBusyTimeout),
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("engine: %s: %w", pragma, err)
		}
	}
	return nil
}

// OpenFile opens dsn and applies the default pragmas.
func OpenFile(dsn string) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
