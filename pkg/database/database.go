package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// identifierPattern is the allow-list for anything interpolated into SQL as
// a table or column name. Everything else goes through placeholders.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Database is an explicitly owned handle to the embedded analytical store.
// One on-disk file; tables are namespaced by prefix (raw_, ref_, agg_)
// rather than engine-level schemas.
type Database struct {
	SQL  *sql.DB
	Path string
}

// Connect opens (creating if needed) the SQLite database at path.
func Connect(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// Single-process batch tool, writers are serialized anyway
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	log.Info().Str("path", path).Msg("Connected to analytical store")

	return &Database{SQL: db, Path: path}, nil
}

func (d *Database) Close() error {
	return d.SQL.Close()
}

// ValidateIdentifier rejects anything unsafe to interpolate into SQL text.
func ValidateIdentifier(name string, kind string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid %s name: %q", kind, name)
	}

	return nil
}

// QuoteIdentifier double-quotes an identifier for dynamically built SQL.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether a table or view with the given name exists.
func (d *Database) TableExists(name string) bool {
	var count int
	err := d.SQL.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", name,
	).Scan(&count)

	return err == nil && count > 0
}

// CountRows returns the row count of a table, validating the name first.
func (d *Database) CountRows(table string) (int64, error) {
	if err := ValidateIdentifier(table, "table"); err != nil {
		return 0, err
	}

	var count int64
	if err := d.SQL.QueryRow("SELECT COUNT(*) FROM " + QuoteIdentifier(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	return count, nil
}

// DropCreate replaces a table: drop if present, then run the DDL.
func (d *Database) DropCreate(table string, ddl string) error {
	if err := ValidateIdentifier(table, "table"); err != nil {
		return err
	}

	if _, err := d.SQL.Exec("DROP TABLE IF EXISTS " + QuoteIdentifier(table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := d.SQL.Exec(ddl); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	return nil
}

// ListTables returns the names of all tables matching a LIKE pattern.
func (d *Database) ListTables(pattern string) ([]string, error) {
	rows, err := d.SQL.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name", pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
