// Package registry is the archive's relational store: typed, idempotent
// upserts and queries over NOAA records/events and the three file tables,
// backed by PostgreSQL through pgx. The store is the single source of
// truth; components read fresh state before mutating and never cache rows.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/storm-data-archive/internal/registry/migrations"
)

// Registry wraps a pgx connection pool with an explicit lifecycle: open at
// process start, close at shutdown, injected into components.
type Registry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Registry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Registry{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (r *Registry) Close() {
	r.pool.Close()
}

// Migrate applies all pending schema migrations.
func (r *Registry) Migrate(ctx context.Context) error {
	return migrations.RunUp(ctx, r.pool)
}

// CheckReadiness reports whether the database is reachable. It satisfies
// the readiness contract of the status HTTP server.
func (r *Registry) CheckReadiness(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}
