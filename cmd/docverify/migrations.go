package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// runMigrations applies all .sql files under the migrations directory in
// lexical order. Files are written idempotently (CREATE TABLE IF NOT EXISTS,
// ON CONFLICT DO NOTHING), so re-running at every boot is safe and a
// separate migration tracking table is unnecessary.
func runMigrations(db *sql.DB) error {
	dir := os.Getenv("DOCVERIFY_MIGRATIONS_DIR")
	if dir == "" {
		dir = "db/migrations"
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
	}
	return nil
}
