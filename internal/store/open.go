package store

import (
	"context"
	"fmt"

	"github.com/example/carego/internal/config"
)

// Open returns the backend named by c.DBAdapter. For postgres and mysql the
// schema is migrated first.
func Open(ctx context.Context, c *config.Config) (DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(ctx, c.SQLiteFile)
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations("postgres", c.MigrationsDir, dsn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return NewPostgresDB(ctx, dsn)
	case "mysql":
		dsn, err := c.BuildMySQLDSN()
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations("mysql", c.MigrationsDir, dsn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return NewMySQLDB(ctx, dsn)
	case "memory":
		return NewMemoryDB(), nil
	}
	return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, mysql, sqlite, memory)", c.DBAdapter)
}
