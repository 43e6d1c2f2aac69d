package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Run brings the partner schema up to date. Each pending .sql file under
// sql/ is applied inside its own transaction and recorded, so a failed file
// leaves the schema at the last good migration.
func Run(db *sql.DB) error {
	log.Println("🔄 Checking partner database schema...")

	if err := ensureLedger(db); err != nil {
		return fmt.Errorf("failed to prepare migration ledger: %w", err)
	}

	pending, err := pendingMigrations(db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Println("✅ Partner schema is up to date")
		return nil
	}

	for _, name := range pending {
		if err := applyOne(db, name); err != nil {
			return err
		}
	}

	log.Printf("✅ Partner schema migrated (%d file(s) applied)", len(pending))
	return nil
}

// pendingMigrations lists embedded .sql files not yet in the ledger, in
// lexical order. File names carry their ordering prefix (001_, 002_, ...).
func pendingMigrations(db *sql.DB) ([]string, error) {
	names, err := fs.Glob(schemaFS, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded migrations: %w", err)
	}
	sort.Strings(names)

	applied, err := appliedMigrations(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}

	var pending []string
	for _, name := range names {
		if !applied[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// applyOne runs a single migration file and its ledger insert in one
// transaction.
func applyOne(db *sql.DB, name string) error {
	log.Printf("  Applying migration: %s", name)

	content, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("migration %s failed: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}

	return tx.Commit()
}

func ensureLedger(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`)
	return err
}

func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		applied[filename] = true
	}
	return applied, rows.Err()
}
