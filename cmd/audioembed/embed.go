package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/audioembed/internal/engine"
	"github.com/chaz8081/audioembed/internal/session"
)

type embedOutput struct {
	Path       string      `json:"path"`
	Rows       int         `json:"rows"`
	Width      int         `json:"width"`
	Embeddings [][]float32 `json:"embeddings"`
}

func newEmbedCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "embed <audio.wav>",
		Short: "Compute the embedding rows of one audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				printBanner(cmd.ErrOrStderr(), a.cfg)
			}

			factory, err := engine.NewFactory(a.cfg.Engine)
			if err != nil {
				return err
			}
			reg := session.NewRegistry(factory)
			defer reg.Close()

			h, err := reg.Create()
			if err != nil {
				return err
			}
			defer reg.Destroy(h)

			ctx := cmd.Context()
			start := time.Now()
			var res *session.Embeddings
			err = reg.Lookup(h, func(c *session.Context) error {
				if err := c.Configure(ctx, a.cfg.Engine.ModelPath); err != nil {
					return err
				}
				if err := c.Run(ctx, args[0], a.cfg.Audio.SampleRate, a.cfg.Audio.ResampleQuality); err != nil {
					return err
				}
				res = c.Result()
				return nil
			})
			if err != nil {
				return err
			}
			slog.Info("Embedded", "audio", args[0], "rows", res.Rows, "width", res.Width, "elapsed", time.Since(start).Round(time.Millisecond))

			return writeEmbeddings(cmd.OutOrStdout(), args[0], res, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the embedding rows as JSON")
	return cmd
}

func writeEmbeddings(w io.Writer, path string, res *session.Embeddings, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintf(w, "%s: %d x %d\n", path, res.Rows, res.Width)
		return err
	}

	out := embedOutput{Path: path, Rows: res.Rows, Width: res.Width, Embeddings: make([][]float32, res.Rows)}
	for i := range res.Rows {
		out.Embeddings[i] = res.Row(i)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}
