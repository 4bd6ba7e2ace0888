package cards

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	importPath TEXT NOT NULL,
	title TEXT,
	height TEXT NOT NULL,
	componentProps TEXT NOT NULL
);`

// SQLiteStore keeps cards in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the cards
// table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cards: create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cards: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cards: create cards table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Existing(ctx context.Context) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT importPath, title, height, componentProps FROM cards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Card
	for rows.Next() {
		var c Card
		var title sql.NullString
		if err := rows.Scan(&c.ImportPath, &title, &c.Height, &c.Props); err != nil {
			return nil, err
		}
		c.Title = title.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, cards []Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cards (importPath, title, height, componentProps) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cards {
		if _, err := stmt.ExecContext(ctx, c.ImportPath, nullable(c.Title), c.Height, c.Props); err != nil {
			return fmt.Errorf("insert %s: %w", c.ImportPath, err)
		}
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
