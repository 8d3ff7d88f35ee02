package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres stores records in the audio_embeddings table as pgvector vectors.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and registers the vector type on every connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS audio_embeddings (
	path       TEXT        NOT NULL,
	model      TEXT        NOT NULL,
	embedding  vector      NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (model, path)
)`

// Migrate creates the vector extension and the table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("store: create extension: %w", err)
	}
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO audio_embeddings (path, model, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model, path) DO UPDATE
		SET embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`,
		rec.Path, rec.Model, pgvector.NewVector(rec.Vector), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save %q: %w", rec.Path, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, model, path string) (Record, error) {
	var (
		rec Record
		vec pgvector.Vector
	)
	err := p.pool.QueryRow(ctx, `
		SELECT path, model, embedding, created_at
		FROM audio_embeddings WHERE model = $1 AND path = $2`, model, path).
		Scan(&rec.Path, &rec.Model, &vec, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %q: %w", path, err)
	}
	rec.Vector = vec.Slice()
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, model string) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT path, model, embedding, created_at
		FROM audio_embeddings WHERE model = $1 ORDER BY path`, model)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			vec pgvector.Vector
		)
		if err := rows.Scan(&rec.Path, &rec.Model, &vec, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		rec.Vector = vec.Slice()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Nearest returns up to k records for model ordered by cosine distance to vec.
func (p *Postgres) Nearest(ctx context.Context, model string, vec []float32, k int) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT path, model, embedding, created_at
		FROM audio_embeddings WHERE model = $1
		ORDER BY embedding <=> $2 LIMIT $3`, model, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("store: nearest: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			v   pgvector.Vector
		)
		if err := rows.Scan(&rec.Path, &rec.Model, &v, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: nearest: %w", err)
		}
		rec.Vector = v.Slice()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
