package storage

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order.
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_scan_runs_table",
		Up:      migration002AddScanRunsTable,
	},
}

// runMigrations executes all pending migrations inside transactions.
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range allMigrations {
		if applied[m.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Storage) appliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	stmts := []string{
		// Passports are owned by the surrounding system; the pipeline
		// only flips paid/paid_at. The table is created here so the
		// module runs standalone in tests and single-binary deploys.
		`CREATE TABLE IF NOT EXISTS passports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_name TEXT NOT NULL,
			linked_user_name TEXT,
			amount_due_cents INTEGER NOT NULL,
			paid INTEGER NOT NULL DEFAULT 0,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passports_amount_unpaid
			ON passports(amount_due_cents) WHERE paid = 0`,

		`CREATE TABLE IF NOT EXISTS payment_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at TIMESTAMP NOT NULL,
			payer_name_raw TEXT NOT NULL DEFAULT '',
			amount_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			matched_passport_id INTEGER REFERENCES passports(id),
			score INTEGER,
			runner_up_score INTEGER,
			candidate_count INTEGER NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT '',
			source_message_id TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// One live attempt per message: uniqueness is scoped to
		// non-archived rows so unarchive can be rejected cleanly.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_message_live
			ON payment_attempts(source_message_id) WHERE archived = 0`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_result
			ON payment_attempts(result)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration002AddScanRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS scan_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		account TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		messages_seen INTEGER NOT NULL DEFAULT 0,
		messages_matched INTEGER NOT NULL DEFAULT 0,
		messages_skipped INTEGER NOT NULL DEFAULT 0,
		messages_errored INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running'
	)`)
	return err
}
