package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/chaz8081/audioembed/internal/audio"
	"github.com/chaz8081/audioembed/internal/features"
)

// MelProj embeds audio by projecting per-patch log-mel statistics through
// the dense matrix of a msgpack Model.
type MelProj struct {
	model     *Model
	extractor *features.Extractor
	weights   *mat.Dense // Dim x InputWidth
	bias      []float64
}

// NewMelProj returns an unconfigured MelProj engine.
func NewMelProj() *MelProj {
	return &MelProj{}
}

// Configure loads the model file and prepares the filterbank.
func (p *MelProj) Configure(modelPath string) error {
	m, err := LoadModel(modelPath)
	if err != nil {
		return err
	}
	ex, err := features.NewExtractor(m.FeatureConfig())
	if err != nil {
		return fmt.Errorf("invalid model %q: %w", modelPath, err)
	}

	w := make([]float64, len(m.Weights))
	for i, v := range m.Weights {
		w[i] = float64(v)
	}
	bias := make([]float64, m.Dim)
	for i, v := range m.Bias {
		bias[i] = float64(v)
	}

	p.model = m
	p.extractor = ex
	p.weights = mat.NewDense(m.Dim, m.InputWidth(), w)
	p.bias = bias

	slog.Debug("[melproj] model loaded", "path", modelPath, "name", m.Name, "dim", m.Dim, "mels", m.NumMels)
	return nil
}

// DecodeAndResample decodes a WAV file to mono at sampleRate.
func (p *MelProj) DecodeAndResample(ctx context.Context, audioPath string, sampleRate, quality int) (audio.Clip, error) {
	return decodeAndResample(ctx, audioPath, sampleRate, quality)
}

// Infer returns one L2-normalized row per mel patch.
func (p *MelProj) Infer(ctx context.Context, clip audio.Clip) ([][]float32, error) {
	if p.model == nil {
		return nil, errors.New("no model loaded")
	}
	if clip.SampleRate != p.model.SampleRate {
		return nil, fmt.Errorf("model expects %d Hz audio, got %d Hz", p.model.SampleRate, clip.SampleRate)
	}

	frames := p.extractor.Extract(clip.Samples)
	if len(frames) == 0 {
		return nil, errors.New("no analysis frames in audio")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	patches := patchBounds(len(frames), p.model.PatchFrames, p.model.PatchHop)
	stats := mat.NewDense(len(patches), p.model.InputWidth(), nil)
	for i, b := range patches {
		stats.SetRow(i, patchStats(frames[b[0]:b[1]], p.model.NumMels))
	}

	var proj mat.Dense
	proj.Mul(stats, p.weights.T())

	rows := make([][]float32, len(patches))
	for i := range rows {
		row := proj.RawRowView(i)
		floats.Add(row, p.bias)
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
		out := make([]float32, len(row))
		for j, v := range row {
			out[j] = float32(v)
		}
		rows[i] = out
	}
	return rows, nil
}

// Close drops the loaded model.
func (p *MelProj) Close() error {
	p.model = nil
	p.extractor = nil
	p.weights = nil
	return nil
}

// patchBounds splits n frames into [start, end) windows of size frames every
// hop frames. Fewer than size frames form a single short patch.
func patchBounds(n, size, hop int) [][2]int {
	if n <= size {
		return [][2]int{{0, n}}
	}
	count := (n-size)/hop + 1
	out := make([][2]int, count)
	for i := range out {
		out[i] = [2]int{i * hop, i*hop + size}
	}
	return out
}

// patchStats returns the per-band mean followed by the per-band standard
// deviation of frames.
func patchStats(frames [][]float32, numMels int) []float64 {
	stats := make([]float64, 2*numMels)
	mean, std := stats[:numMels], stats[numMels:]
	n := float64(len(frames))

	for _, f := range frames {
		for m, v := range f {
			mean[m] += float64(v)
		}
	}
	floats.Scale(1/n, mean)

	for _, f := range frames {
		for m, v := range f {
			d := float64(v) - mean[m]
			std[m] += d * d
		}
	}
	for m := range std {
		std[m] = math.Sqrt(std[m] / n)
	}
	return stats
}
