package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/audioembed/internal/engine"
	"github.com/chaz8081/audioembed/internal/models"
)

func newModelCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Create or download model files",
	}
	cmd.AddCommand(newModelInitCommand(a), newModelFetchCommand())
	return cmd
}

func newModelInitCommand(a *app) *cobra.Command {
	var (
		seed  uint64
		force bool
	)
	opts := engine.DefaultModelOptions()

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a seeded projection model for the melproj backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Engine.ModelPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			m := engine.NewRandomModel(seed, opts)
			if err := engine.SaveModel(path, m); err != nil {
				return err
			}

			digest, err := engine.ModelDigest(path)
			if err != nil {
				return err
			}
			slog.Info("Model written", "path", path, "dim", m.Dim, "mels", m.NumMels, "digest", digest[:12])
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed for the projection weights")
	cmd.Flags().IntVar(&opts.Dim, "dim", opts.Dim, "embedding width")
	cmd.Flags().IntVar(&opts.NumMels, "mels", opts.NumMels, "mel bands per frame")
	cmd.Flags().IntVar(&opts.PatchFrames, "patch-frames", opts.PatchFrames, "frames per embedding row")
	cmd.Flags().IntVar(&opts.PatchHop, "patch-hop", opts.PatchHop, "frames between embedding rows")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing model file")
	return cmd
}

func newModelFetchCommand() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "fetch [url]",
		Short: "Download a model file (default: Discogs-EffNet track embeddings)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := models.EffnetModelURL
			if len(args) == 1 {
				url = args[0]
			}
			if dest == "" {
				dest = models.DefaultDest(url)
			}
			if err := models.Download(cmd.Context(), url, dest, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "out", "o", "", "destination path (default: models dir)")
	return cmd
}
