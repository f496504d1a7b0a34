package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the kv_entries table exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := ensureEntriesTable(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure kv_entries: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func ensureEntriesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
    CREATE TABLE IF NOT EXISTS kv_entries (
      key TEXT PRIMARY KEY,
      value JSONB NOT NULL,
      updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )
  `)
	return err
}

func (p *Postgres) Get(ctx context.Context, key Key, out any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	var value []byte
	err = p.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, encoded).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return unmarshal(value, out)
}

func (p *Postgres) Set(ctx context.Context, key Key, value any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	payload, err := marshal(value)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
    INSERT INTO kv_entries (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
  `, encoded, payload)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key Key) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, encoded)
	return err
}

func (p *Postgres) List(ctx context.Context, prefix Key) ([]Entry, error) {
	encodedPrefix, err := prefix.encodePrefix()
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
    SELECT key, value
    FROM kv_entries
    WHERE starts_with(key, $1)
    ORDER BY key COLLATE "C"
  `, encodedPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			rawKey string
			value  []byte
		)
		if err := rows.Scan(&rawKey, &value); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: decodeKey(rawKey), Value: value})
	}
	return entries, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
