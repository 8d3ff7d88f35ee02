package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/audioembed/internal/config"
)

func openMemory(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// exercise runs the behavior every Store must share.
func exercise(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.Get(ctx, "m1", "/music/a.wav")
	require.ErrorIs(t, err, ErrNotFound)

	recs := []Record{
		{Path: "/music/a.wav", Model: "m1", Vector: []float32{1, 0, 0}, CreatedAt: now},
		{Path: "/music/b.wav", Model: "m1", Vector: []float32{0, 1, 0}, CreatedAt: now},
		{Path: "/music/c.wav", Model: "m1", Vector: []float32{0.9, 0.1, 0}, CreatedAt: now},
		{Path: "/music/a.wav", Model: "m2", Vector: []float32{0, 0, 1}, CreatedAt: now},
	}
	for _, r := range recs {
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.Get(ctx, "m1", "/music/a.wav")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	assert.True(t, now.Equal(got.CreatedAt), "CreatedAt = %v, want %v", got.CreatedAt, now)

	list, err := s.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "/music/a.wav", list[0].Path)
	assert.Equal(t, "/music/c.wav", list[2].Path)

	// Saving again replaces.
	require.NoError(t, s.Save(ctx, Record{Path: "/music/a.wav", Model: "m1", Vector: []float32{0, 0, 2}, CreatedAt: now}))
	got, err = s.Get(ctx, "m1", "/music/a.wav")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 2}, got.Vector)

	near, err := s.Nearest(ctx, "m1", []float32{1, 0.2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, near, 2)
	assert.Equal(t, "/music/c.wav", near[0].Path)
	assert.Equal(t, "/music/b.wav", near[1].Path)
}

func TestBadger(t *testing.T) {
	exercise(t, openMemory(t))
}

func TestBadgerOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, Record{Path: "x.wav", Model: "m", Vector: []float32{0.5}}))
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	defer b.Close()
	rec, err := b.Get(ctx, "m", "x.wav")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, rec.Vector)
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	_, err := OpenBadger(BadgerOptions{})
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("AUDIOEMBED_TEST_DSN")
	if dsn == "" {
		t.Skip("AUDIOEMBED_TEST_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: "postgres", DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	pg := s.(*Postgres)
	_, err = pg.pool.Exec(ctx, `DELETE FROM audio_embeddings WHERE model IN ('m1', 'm2')`)
	require.NoError(t, err)

	exercise(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)
	_, err = s.Get(ctx, "m", "p")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err = Open(ctx, config.StoreConfig{Backend: "badger", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Badger{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Backend: "sqlite"})
	assert.ErrorContains(t, err, `unknown backend "sqlite"`)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}))
}
