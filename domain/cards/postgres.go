package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	pgSchema = `
CREATE TABLE IF NOT EXISTS cards (
	id BIGSERIAL PRIMARY KEY,
	import_path TEXT NOT NULL,
	title TEXT,
	height TEXT NOT NULL,
	component_props TEXT NOT NULL
)`
	pgSelect = `SELECT import_path, title, height, component_props FROM cards ORDER BY id`
	pgInsert = `INSERT INTO cards (import_path, title, height, component_props) VALUES ($1, $2, $3, $4)`
)

// PostgresStore keeps cards in a PostgreSQL table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres connects to dsn and ensures the cards table exists.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cards: connect postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool and creates the cards table if
// missing.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("cards: create cards table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("cards.postgres")}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Existing(ctx context.Context) ([]Card, error) {
	rows, err := s.pool.Query(ctx, pgSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Card
	for rows.Next() {
		var c Card
		var title *string
		if err := rows.Scan(&c.ImportPath, &title, &c.Height, &c.Props); err != nil {
			return nil, err
		}
		if title != nil {
			c.Title = *title
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, cards []Card) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("rollback failed", zap.Error(rbErr))
		}
	}()
	for _, c := range cards {
		var title *string
		if c.Title != "" {
			title = &c.Title
		}
		if _, err := tx.Exec(ctx, pgInsert, c.ImportPath, title, c.Height, c.Props); err != nil {
			return fmt.Errorf("insert %s: %w", c.ImportPath, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
