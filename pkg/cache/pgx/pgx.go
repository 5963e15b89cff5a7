// Package pgx stores cache artifacts in the cache_artifacts table.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/storygraph/pkg/cache"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	readSQL   = `SELECT data FROM cache_artifacts WHERE name = $1`
	writeSQL  = `INSERT INTO cache_artifacts (name, data, updated_at) VALUES ($1, $2, now()) ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	removeSQL = `DELETE FROM cache_artifacts WHERE name = $1`
	listSQL   = `SELECT name FROM cache_artifacts ORDER BY name`
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db dbConn
}

// NewStore returns a store on pool. The table is created by the migrations.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, readSQL, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	if _, err := s.db.Exec(ctx, writeSQL, name, data); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, removeSQL, name); err != nil {
		return fmt.Errorf("remove artifact %s: %w", name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return names, nil
}
