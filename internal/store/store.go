// Package store persists pooled track embeddings keyed by model and audio path.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/audioembed/internal/config"
)

// ErrNotFound is returned when no embedding exists for a key.
var ErrNotFound = errors.New("store: embedding not found")

// Record is one pooled embedding.
type Record struct {
	Path      string    `msgpack:"path"`
	Model     string    `msgpack:"model"` // model digest
	Vector    []float32 `msgpack:"vector"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Store saves and loads records. Saving an existing (model, path) replaces it.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, model, path string) (Record, error)
	List(ctx context.Context, model string) ([]Record, error)
	// Nearest returns up to k records for model, closest to vec by cosine distance first.
	Nearest(ctx context.Context, model string, vec []float32, k int) ([]Record, error)
	Close() error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return Discard{}, nil
	case "badger":
		return OpenBadger(BadgerOptions{Dir: cfg.Dir})
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// Discard drops every record.
type Discard struct{}

func (Discard) Save(context.Context, Record) error { return nil }

func (Discard) Get(context.Context, string, string) (Record, error) {
	return Record{}, ErrNotFound
}

func (Discard) List(context.Context, string) ([]Record, error) { return nil, nil }

func (Discard) Nearest(context.Context, string, []float32, int) ([]Record, error) { return nil, nil }

func (Discard) Close() error { return nil }
