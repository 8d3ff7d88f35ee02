package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample quality levels, ordered from best to fastest.
const (
	QualityBestSinc   = 0
	QualityMediumSinc = 1
	QualityFastSinc   = 2
	QualityZeroHold   = 3
	QualityLinear     = 4
)

// Resample converts mono samples from one rate to another. Quality 0 to 2
// use the band-limited sinc resampler; 3 holds the previous sample and 4
// interpolates linearly. The result always has round(len*to/from) samples.
func Resample(samples []float32, from, to, quality int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", from, to)
	}
	if quality < QualityBestSinc || quality > QualityLinear {
		return nil, fmt.Errorf("audio: resample quality must be between 0 and 4, got %d", quality)
	}
	if from == to || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))

	switch quality {
	case QualityZeroHold:
		return holdResample(samples, n), nil
	case QualityLinear:
		return linearResample(samples, n), nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	res, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	// The filter delay leaves a short tail unproduced; pad it with silence.
	out := make([]float32, n)
	for i := 0; i < n && i < len(res); i++ {
		out[i] = float32(res[i])
	}
	return out, nil
}

func holdResample(samples []float32, n int) []float32 {
	out := make([]float32, n)
	step := float64(len(samples)) / float64(n)
	for i := range out {
		j := int(float64(i) * step)
		if j >= len(samples) {
			j = len(samples) - 1
		}
		out[i] = samples[j]
	}
	return out
}

func linearResample(samples []float32, n int) []float32 {
	out := make([]float32, n)
	if n == 1 || len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}
	step := float64(len(samples)-1) / float64(n-1)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}
