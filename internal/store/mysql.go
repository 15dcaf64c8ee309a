package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var MySQLDialect = Dialect{
	Name: "mysql",
	IsUniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	},
}

// mysqlDSN forces clientFoundRows so RowsAffected counts matched rows. An
// UPDATE that writes the same values must not look like a missing row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// NewMySQLDB connects with go-sql-driver/mysql. Tables come from migrations.
func NewMySQLDB(ctx context.Context, dsn string) (*SQLDB, error) {
	dsn, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}
	d, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(20)
	d.SetMaxIdleConns(10)
	d.SetConnMaxLifetime(5 * time.Minute)
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return NewSQLDB(d, MySQLDialect), nil
}
