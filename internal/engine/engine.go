// Package engine provides the inference backends a session context drives:
// a model is bound once by Configure, then each run decodes an audio file
// and turns it into a matrix of embedding rows.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/chaz8081/audioembed/internal/audio"
	"github.com/chaz8081/audioembed/internal/config"
)

// Engine is one model-bound inference instance. An Engine is used by a
// single goroutine at a time.
type Engine interface {
	// Configure binds the engine to the model at modelPath.
	Configure(modelPath string) error
	// DecodeAndResample loads audioPath as mono audio at sampleRate.
	DecodeAndResample(ctx context.Context, audioPath string, sampleRate, quality int) (audio.Clip, error)
	// Infer returns one embedding row per analysis window. All rows share a width.
	Infer(ctx context.Context, clip audio.Clip) ([][]float32, error)
	// Close releases the engine.
	Close() error
}

// Factory creates unconfigured engines.
type Factory func() Engine

// NewFactory returns a Factory for the configured backend.
func NewFactory(cfg config.EngineConfig) (Factory, error) {
	switch cfg.Backend {
	case "melproj":
		return func() Engine { return NewMelProj() }, nil
	case "exec":
		if cfg.ExecPath == "" {
			return nil, fmt.Errorf("engine: exec backend requires an executable path")
		}
		bin := cfg.ExecPath
		return func() Engine { return NewExec(bin) }, nil
	default:
		return nil, fmt.Errorf("engine: unknown backend %q", cfg.Backend)
	}
}

// decodeAndResample is the decode stage shared by every backend.
func decodeAndResample(ctx context.Context, path string, sampleRate, quality int) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	if sampleRate <= 0 {
		return audio.Clip{}, fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
	}

	clip, err := audio.DecodeFile(path)
	if err != nil {
		return audio.Clip{}, err
	}

	samples, err := audio.Resample(clip.Samples, clip.SampleRate, sampleRate, quality)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// ModelDigest returns the hex BLAKE2b-256 digest of a model file. It
// identifies which model produced a stored embedding.
func ModelDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("engine: open model %q: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("engine: hash model %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
