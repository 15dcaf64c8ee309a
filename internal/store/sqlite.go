package store

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

var SQLiteDialect = Dialect{
	Name: "sqlite",
	IsUniqueViolation: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, identifier TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, role TEXT NOT NULL, account_status TEXT NOT NULL, is_active INTEGER NOT NULL DEFAULT 1, created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES users(id), refresh_token_hash TEXT NOT NULL, is_valid INTEGER NOT NULL DEFAULT 1, expires_at INTEGER NOT NULL, origin_address TEXT NOT NULL DEFAULT '', client_string TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);`,
	`CREATE TABLE IF NOT EXISTS audit_log (id TEXT PRIMARY KEY, actor_user_id TEXT, actor_role TEXT NOT NULL DEFAULT '', action TEXT NOT NULL, entity_type TEXT NOT NULL DEFAULT '', entity_id TEXT NOT NULL DEFAULT '', before_value TEXT, after_value TEXT, reason TEXT NOT NULL DEFAULT '', origin_address TEXT NOT NULL DEFAULT '', client_string TEXT NOT NULL DEFAULT '', occurred_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS staff_profiles (user_id TEXT PRIMARY KEY REFERENCES users(id), full_name TEXT NOT NULL, created_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS client_profiles (user_id TEXT PRIMARY KEY REFERENCES users(id), full_name TEXT NOT NULL, created_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS student_profiles (user_id TEXT PRIMARY KEY REFERENCES users(id), full_name TEXT NOT NULL, created_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS teacher_profiles (user_id TEXT PRIMARY KEY REFERENCES users(id), full_name TEXT NOT NULL, created_at INTEGER NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS care_visits (id TEXT PRIMARY KEY, staff_user_id TEXT NOT NULL REFERENCES users(id), client_user_id TEXT NOT NULL, visited_at INTEGER NOT NULL, notes TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL);`,
	`CREATE INDEX IF NOT EXISTS idx_care_visits_staff ON care_visits(staff_user_id);`,
	`CREATE TABLE IF NOT EXISTS invoices (id TEXT PRIMARY KEY, client_user_id TEXT NOT NULL REFERENCES users(id), amount_cents INTEGER NOT NULL, currency TEXT NOT NULL, status TEXT NOT NULL, due_at INTEGER NOT NULL, created_at INTEGER NOT NULL);`,
}

// NewSQLiteDB opens (creating if needed) a SQLite file and ensures the schema.
func NewSQLiteDB(ctx context.Context, path string) (*SQLDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer avoids SQLITE_BUSY under concurrent requests
	d.SetMaxOpenConns(1)
	for _, q := range sqliteSchema {
		if _, err := d.ExecContext(ctx, q); err != nil {
			d.Close()
			return nil, err
		}
	}
	return NewSQLDB(d, SQLiteDialect), nil
}
