package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig `yaml:"engine"`
	Audio    AudioConfig  `yaml:"audio"`
	Pool     PoolConfig   `yaml:"pool"`
	Store    StoreConfig  `yaml:"store"`
	LogLevel string       `yaml:"log_level"`
}

// EngineConfig selects and parameterizes the inference backend.
type EngineConfig struct {
	Backend   string `yaml:"backend"` // "melproj" or "exec"
	ModelPath string `yaml:"model_path"`
	ExecPath  string `yaml:"exec_path"` // only used by the exec backend
}

// AudioConfig holds decode settings applied to every run.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	ResampleQuality int `yaml:"resample_quality"` // 0 (best) to 4 (fastest)
}

// PoolConfig sizes the batch worker pool.
type PoolConfig struct {
	Workers      int `yaml:"workers"`
	RecycleAfter int `yaml:"recycle_after"`
}

// StoreConfig selects where pooled embeddings are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "none", "badger" or "postgres"
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "audioembed")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory models and stores live under.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "audioembed")
}

// DefaultModelsDir returns the directory downloaded and generated models live in.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	data := DefaultDataDir()
	return &Config{
		Engine: EngineConfig{
			Backend:   "melproj",
			ModelPath: filepath.Join(DefaultModelsDir(), "melproj-base.msgpack"),
			ExecPath:  "audioembed-infer",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			ResampleQuality: 4,
		},
		Pool: PoolConfig{
			Workers:      4,
			RecycleAfter: 40,
		},
		Store: StoreConfig{
			Backend: "none",
			Dir:     filepath.Join(data, "store"),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
// An empty path means DefaultConfigPath.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Environment variables recognized by ApplyEnv.
const (
	EnvConfig          = "AUDIOEMBED_CONFIG"
	EnvBackend         = "AUDIOEMBED_BACKEND"
	EnvModelPath       = "AUDIOEMBED_MODEL_PATH"
	EnvExecPath        = "AUDIOEMBED_EXEC_PATH"
	EnvSampleRate      = "AUDIOEMBED_SAMPLE_RATE"
	EnvResampleQuality = "AUDIOEMBED_RESAMPLE_QUALITY"
	EnvStoreBackend    = "AUDIOEMBED_STORE"
	EnvStoreDSN        = "AUDIOEMBED_STORE_DSN"
	EnvLogLevel        = "AUDIOEMBED_LOG_LEVEL"
)

// ApplyEnv overrides fields from AUDIOEMBED_* environment variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str(EnvBackend, &c.Engine.Backend)
	str(EnvModelPath, &c.Engine.ModelPath)
	str(EnvExecPath, &c.Engine.ExecPath)
	str(EnvStoreBackend, &c.Store.Backend)
	str(EnvStoreDSN, &c.Store.DSN)
	str(EnvLogLevel, &c.LogLevel)
	if err := num(EnvSampleRate, &c.Audio.SampleRate); err != nil {
		return err
	}
	if err := num(EnvResampleQuality, &c.Audio.ResampleQuality); err != nil {
		return err
	}

	c.expandPaths()
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "melproj":
	case "exec":
		if c.Engine.ExecPath == "" {
			return fmt.Errorf("engine.exec_path must not be empty for the exec backend")
		}
	default:
		return fmt.Errorf("engine.backend must be \"melproj\" or \"exec\", got %q", c.Engine.Backend)
	}

	if c.Engine.ModelPath == "" {
		return fmt.Errorf("engine.model_path must not be empty")
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.ResampleQuality < 0 || c.Audio.ResampleQuality > 4 {
		return fmt.Errorf("audio.resample_quality must be between 0 and 4, got %d", c.Audio.ResampleQuality)
	}

	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}

	if c.Pool.RecycleAfter < 0 {
		return fmt.Errorf("pool.recycle_after must be >= 0")
	}

	switch c.Store.Backend {
	case "none", "":
	case "badger":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir must not be empty for the badger store")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must not be empty for the postgres store")
		}
	default:
		return fmt.Errorf("store.backend must be none, badger, or postgres, got %q", c.Store.Backend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level onto slog. Unknown values yield info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# audioembed configuration
# backend: melproj (built-in projection model) or exec (external inference CLI)
# resample_quality: 0 (best) to 4 (fastest)
`

// WriteDefault writes the default config to DefaultConfigPath. It returns the
// written path, or "" when a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

func (c *Config) expandPaths() {
	c.Engine.ModelPath = expandTilde(c.Engine.ModelPath)
	c.Engine.ExecPath = expandTilde(c.Engine.ExecPath)
	c.Store.Dir = expandTilde(c.Store.Dir)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
