package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chaz8081/audioembed/internal/config"
)

// app carries state shared by every subcommand once the root has loaded config.
type app struct {
	configPath string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "audioembed",
		Short:         "Compute audio embeddings from WAV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default: ~/.config/audioembed/config.yaml)")

	root.AddCommand(
		newEmbedCommand(a),
		newBatchCommand(a),
		newSimilarCommand(a),
		newModelCommand(a),
		newCaptureCommand(a),
		newConfigCommand(a),
	)
	return root
}

// init loads .env, the config file and environment overrides, then installs
// the default logger.
func (a *app) init() error {
	// A missing .env is normal.
	_ = godotenv.Load()

	path := a.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.cfg = cfg

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Debug("No config file found, using defaults")
	return config.Default(), nil
}

var (
	bannerTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	bannerLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")).Width(9)
)

// printBanner displays the effective configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	line := func(label, value string) {
		fmt.Fprintf(w, "  %s%s\n", bannerLabel.Render(label), value)
	}
	fmt.Fprintln(w, bannerTitle.Render("=== audioembed ==="))
	line("Engine:", cfg.Engine.Backend)
	line("Model:", cfg.Engine.ModelPath)
	line("Audio:", fmt.Sprintf("%dHz, quality %d", cfg.Audio.SampleRate, cfg.Audio.ResampleQuality))
	line("Store:", cfg.Store.Backend)
	line("Log:", cfg.LogLevel)
	fmt.Fprintln(w, bannerTitle.Render("=================="))
}
