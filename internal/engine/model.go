package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chaz8081/audioembed/internal/features"
)

// Model is the on-disk melproj model: filterbank parameters, patching and a
// dense projection from per-patch mel statistics to the embedding space.
type Model struct {
	Name        string    `msgpack:"name"`
	SampleRate  int       `msgpack:"sample_rate"`
	NumMels     int       `msgpack:"num_mels"`
	FrameLength int       `msgpack:"frame_length"`
	FrameShift  int       `msgpack:"frame_shift"`
	FFTSize     int       `msgpack:"fft_size"`
	PatchFrames int       `msgpack:"patch_frames"`
	PatchHop    int       `msgpack:"patch_hop"`
	Dim         int       `msgpack:"dim"`
	Weights     []float32 `msgpack:"weights"` // Dim x InputWidth, row-major
	Bias        []float32 `msgpack:"bias"`
}

// InputWidth is the length of the statistics vector fed to the projection:
// a mean and a standard deviation per mel band.
func (m *Model) InputWidth() int { return 2 * m.NumMels }

// FeatureConfig returns the filterbank settings for this model.
func (m *Model) FeatureConfig() features.Config {
	return features.Config{
		SampleRate:  m.SampleRate,
		FrameLength: m.FrameLength,
		FrameShift:  m.FrameShift,
		FFTSize:     m.FFTSize,
		NumMels:     m.NumMels,
		HighFreq:    float64(m.SampleRate) / 2,
	}
}

// Validate checks the model is internally consistent.
func (m *Model) Validate() error {
	if err := m.FeatureConfig().Validate(); err != nil {
		return err
	}
	if m.PatchFrames <= 0 || m.PatchHop <= 0 {
		return fmt.Errorf("patch_frames and patch_hop must be > 0")
	}
	if m.Dim <= 0 {
		return fmt.Errorf("dim must be > 0")
	}
	if want := m.Dim * m.InputWidth(); len(m.Weights) != want {
		return fmt.Errorf("weights has %d values, want %d", len(m.Weights), want)
	}
	if len(m.Bias) != 0 && len(m.Bias) != m.Dim {
		return fmt.Errorf("bias has %d values, want %d", len(m.Bias), m.Dim)
	}
	return nil
}

// LoadModel reads and validates a msgpack model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	var m Model
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model file %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %q: %w", path, err)
	}
	return &m, nil
}

// SaveModel writes m to path atomically.
func SaveModel(path string, m *Model) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing model file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming model file: %w", err)
	}
	return nil
}

// ModelOptions shapes a generated model.
type ModelOptions struct {
	Name        string
	Dim         int
	NumMels     int
	PatchFrames int
	PatchHop    int
}

// DefaultModelOptions matches the 1280-wide track embeddings of the
// Discogs-EffNet graph used by the exec backend.
func DefaultModelOptions() ModelOptions {
	return ModelOptions{
		Name:        "melproj-base",
		Dim:         1280,
		NumMels:     96,
		PatchFrames: 128,
		PatchHop:    64,
	}
}

// NewRandomModel builds a model with Gaussian projection weights scaled by
// 1/sqrt(fan-in). The same seed always yields the same model.
func NewRandomModel(seed uint64, opts ModelOptions) *Model {
	fc := features.DefaultConfig()
	m := &Model{
		Name:        opts.Name,
		SampleRate:  fc.SampleRate,
		NumMels:     opts.NumMels,
		FrameLength: fc.FrameLength,
		FrameShift:  fc.FrameShift,
		FFTSize:     fc.FFTSize,
		PatchFrames: opts.PatchFrames,
		PatchHop:    opts.PatchHop,
		Dim:         opts.Dim,
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	scale := 1 / math.Sqrt(float64(m.InputWidth()))
	m.Weights = make([]float32, m.Dim*m.InputWidth())
	for i := range m.Weights {
		m.Weights[i] = float32(rng.NormFloat64() * scale)
	}
	m.Bias = make([]float32, m.Dim)
	return m
}
