package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chaz8081/audioembed/internal/audio"
)

// Exec delegates inference to an external command invoked as
//
//	<bin> <audio.wav> <model> <result-file>
//
// The command reads the resampled clip and writes a result file (see
// ParseResult).
type Exec struct {
	bin       string
	binPath   string
	modelPath string
}

// NewExec returns an unconfigured engine running bin.
func NewExec(bin string) *Exec {
	return &Exec{bin: bin}
}

// Configure checks that the model file and the executable exist.
func (e *Exec) Configure(modelPath string) error {
	st, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("model path %q is a directory", modelPath)
	}

	binPath, err := exec.LookPath(e.bin)
	if err != nil {
		return fmt.Errorf("inference command %q: %w", e.bin, err)
	}

	e.binPath = binPath
	e.modelPath = modelPath
	return nil
}

// DecodeAndResample decodes a WAV file to mono at sampleRate.
func (e *Exec) DecodeAndResample(ctx context.Context, audioPath string, sampleRate, quality int) (audio.Clip, error) {
	return decodeAndResample(ctx, audioPath, sampleRate, quality)
}

// Infer writes clip to a temporary WAV, runs the command and parses its result file.
func (e *Exec) Infer(ctx context.Context, clip audio.Clip) ([][]float32, error) {
	if e.binPath == "" {
		return nil, fmt.Errorf("no model loaded")
	}

	dir, err := os.MkdirTemp("", "audioembed-*")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "input.wav")
	outPath := filepath.Join(dir, "result.txt")
	if err := audio.WriteWAV(wavPath, clip.Samples, clip.SampleRate); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binPath, wavPath, e.modelPath, outPath)
	cmd.Stderr = &stderr
	slog.Debug("[exec] running inference command", "cmd", e.binPath, "samples", len(clip.Samples))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("inference command failed: %s", msg)
		}
		return nil, fmt.Errorf("inference command failed: %w", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("inference command wrote no result: %w", err)
	}
	defer f.Close()
	return ParseResult(f)
}

// Close is a no-op; each Infer cleans up after itself.
func (e *Exec) Close() error {
	return nil
}
