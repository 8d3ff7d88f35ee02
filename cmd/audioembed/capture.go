package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/audioembed/internal/audio"
)

func newCaptureCommand(a *app) *cobra.Command {
	var (
		duration time.Duration
		rate     int
	)

	cmd := &cobra.Command{
		Use:   "capture <out.wav>",
		Short: "Record microphone audio to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return fmt.Errorf("--duration must be > 0")
			}
			if rate <= 0 {
				rate = a.cfg.Audio.SampleRate
			}

			c, err := audio.NewCapturer(rate, 1)
			if err != nil {
				return fmt.Errorf("%w (check microphone access)", err)
			}
			defer c.Close()

			slog.Info("Recording...", "duration", duration, "rate", rate)
			clip, err := c.Record(cmd.Context(), duration)
			if err != nil {
				return err
			}
			if clip.Empty() {
				return fmt.Errorf("no audio captured")
			}

			if err := audio.WriteWAV(args[0], clip.Samples, clip.SampleRate); err != nil {
				return err
			}
			slog.Info("Capture saved", "path", args[0], "seconds", clip.Duration().Seconds())
			fmt.Fprintln(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "how long to record")
	cmd.Flags().IntVar(&rate, "rate", 0, "capture sample rate (default: audio.sample_rate)")
	return cmd
}
