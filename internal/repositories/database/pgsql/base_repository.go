package pgsql

import "github.com/jackc/pgx/v5/pgxpool"

// BaseRepository carries the shared connection pool for the SQL-backed
// repositories. Transaction ownership lives with the unit of work; the
// repositories read through the pool and write through a caller-supplied tx.
type BaseRepository struct {
	Pool *pgxpool.Pool
}
