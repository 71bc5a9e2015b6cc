// Package pg is the Postgres-backed taskstore.TaskStore, grounded on the
// teacher's internal/store/pg connection-pool and helper conventions.
package pg

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a sqlx connection pool to Postgres via the pgx stdlib driver.
func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("taskstore/pg: connected", "dsn_len", len(dsn))
	return db, nil
}
