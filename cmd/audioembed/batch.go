package main

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/audioembed/internal/config"
	"github.com/chaz8081/audioembed/internal/engine"
	"github.com/chaz8081/audioembed/internal/pool"
	"github.com/chaz8081/audioembed/internal/session"
	"github.com/chaz8081/audioembed/internal/store"
)

// newPool builds a registry and a worker pool for cfg. Close the returned
// pool before closing the registry.
func newPool(cfg *config.Config, workers int) (*session.Registry, *pool.Pool, error) {
	factory, err := engine.NewFactory(cfg.Engine)
	if err != nil {
		return nil, nil, err
	}
	reg := session.NewRegistry(factory)
	p, err := pool.New(reg, pool.Options{
		ModelPath:    cfg.Engine.ModelPath,
		SampleRate:   cfg.Audio.SampleRate,
		Quality:      cfg.Audio.ResampleQuality,
		Workers:      workers,
		RecycleAfter: cfg.Pool.RecycleAfter,
	})
	if err != nil {
		reg.Close()
		return nil, nil, err
	}
	return reg, p, nil
}

func newBatchCommand(a *app) *cobra.Command {
	var failFast bool

	cmd := &cobra.Command{
		Use:   "batch <audio.wav>...",
		Short: "Embed many files concurrently and save pooled vectors to the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner(cmd.ErrOrStderr(), a.cfg)
			ctx := cmd.Context()

			digest, err := engine.ModelDigest(a.cfg.Engine.ModelPath)
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			reg, p, err := newPool(a.cfg, a.cfg.Pool.Workers)
			if err != nil {
				return err
			}
			defer reg.Close()
			defer p.Close()

			start := time.Now()
			var (
				done, failed atomic.Int64
				outMu        sync.Mutex
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(a.cfg.Pool.Workers)
			for _, path := range args {
				g.Go(func() error {
					vec, err := p.Embed(gctx, path)
					if err != nil {
						if failFast {
							return err
						}
						failed.Add(1)
						slog.Warn("Embedding failed", "audio", path, "error", err)
						return nil
					}
					rec := store.Record{Path: path, Model: digest, Vector: vec, CreatedAt: time.Now().UTC()}
					if err := st.Save(gctx, rec); err != nil {
						return fmt.Errorf("saving %q: %w", path, err)
					}
					done.Add(1)
					outMu.Lock()
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", path, len(vec))
					outMu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			slog.Info("Batch complete", "embedded", done.Load(), "failed", failed.Load(), "elapsed", time.Since(start).Round(time.Millisecond))
			if n := failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d files failed", n, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failed file")
	return cmd
}

func newSimilarCommand(a *app) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar <audio.wav>",
		Short: "List stored files closest to an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Backend == "" || a.cfg.Store.Backend == "none" {
				return fmt.Errorf("similar needs a store; set store.backend to badger or postgres")
			}
			ctx := cmd.Context()

			digest, err := engine.ModelDigest(a.cfg.Engine.ModelPath)
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			reg, p, err := newPool(a.cfg, 1)
			if err != nil {
				return err
			}
			defer reg.Close()
			defer p.Close()

			vec, err := p.Embed(ctx, args[0])
			if err != nil {
				return err
			}

			recs, err := st.Nearest(ctx, digest, vec, k)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", store.CosineDistance(vec, rec.Vector), rec.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 5, "number of matches to list")
	return cmd
}
