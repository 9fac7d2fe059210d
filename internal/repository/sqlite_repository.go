package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type sqliteKV struct {
	db *sql.DB
}

// NewSQLiteKV returns a KV backed by the kv table created by the database
// migrations.
func NewSQLiteKV(db *sql.DB) KV {
	return &sqliteKV{db: db}
}

func (r *sqliteKV) Get(ctx context.Context, key string) (string, error) {
	query := "SELECT value FROM kv WHERE key = ?"
	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (r *sqliteKV) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

func (r *sqliteKV) Delete(ctx context.Context, key string) error {
	query := "DELETE FROM kv WHERE key = ?"
	_, err := r.db.ExecContext(ctx, query, key)
	return err
}
