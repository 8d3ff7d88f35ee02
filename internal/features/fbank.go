// Package features computes log mel filterbank frames from mono PCM.
//
// Frames are Hann-windowed, zero-padded to FFTSize and transformed with a
// real FFT; the power spectrum is pooled through triangular mel filters and
// log-compressed with a 1e-10 floor.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config controls mel filterbank extraction.
type Config struct {
	SampleRate  int
	FrameLength int // window length in samples
	FrameShift  int // hop in samples
	FFTSize     int
	NumMels     int
	LowFreq     float64
	HighFreq    float64 // 0 means Nyquist
}

// DefaultConfig is 25 ms windows every 10 ms at 16 kHz with 96 mel bands.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		FrameLength: 400,
		FrameShift:  160,
		FFTSize:     512,
		NumMels:     96,
		LowFreq:     0,
		HighFreq:    8000,
	}
}

// Validate checks that the config describes a usable filterbank.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("features: sample rate must be > 0")
	case c.FrameLength <= 0 || c.FrameShift <= 0:
		return fmt.Errorf("features: frame length and shift must be > 0")
	case c.FFTSize < c.FrameLength:
		return fmt.Errorf("features: fft size %d smaller than frame length %d", c.FFTSize, c.FrameLength)
	case c.NumMels <= 0 || c.NumMels > c.FFTSize/2:
		return fmt.Errorf("features: num mels %d out of range for fft size %d", c.NumMels, c.FFTSize)
	case c.LowFreq < 0 || (c.HighFreq != 0 && c.HighFreq <= c.LowFreq):
		return fmt.Errorf("features: invalid band %.0f-%.0f Hz", c.LowFreq, c.HighFreq)
	}
	return nil
}

// Extractor holds the precomputed window, FFT plan and filters. It is not
// safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	fft     *fourier.FFT
	melBank [][]float64

	frame  []float64
	coeffs []complex128
	power  []float64
}

// NewExtractor builds an Extractor for cfg.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	high := cfg.HighFreq
	if high == 0 {
		high = float64(cfg.SampleRate) / 2
	}
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FrameLength),
		fft:     fourier.NewFFT(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, high),
		frame:   make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, cfg.FFTSize/2+1),
		power:   make([]float64, cfg.FFTSize/2+1),
	}, nil
}

// Config returns the extraction parameters.
func (e *Extractor) Config() Config { return e.cfg }

// NumFrames returns how many frames Extract yields for n samples. Input
// shorter than one window is zero-padded to a single frame; empty input
// yields none.
func (e *Extractor) NumFrames(n int) int {
	switch {
	case n == 0:
		return 0
	case n <= e.cfg.FrameLength:
		return 1
	}
	return (n-e.cfg.FrameLength)/e.cfg.FrameShift + 1
}

// Extract returns [frames][NumMels] log mel energies.
func (e *Extractor) Extract(pcm []float32) [][]float32 {
	cfg := e.cfg
	numFrames := e.NumFrames(len(pcm))
	out := make([][]float32, numFrames)

	for t := range numFrames {
		start := t * cfg.FrameShift
		for i := range e.frame {
			e.frame[i] = 0
		}
		for i := 0; i < cfg.FrameLength && start+i < len(pcm); i++ {
			e.frame[i] = float64(pcm[start+i]) * e.window[i]
		}

		e.coeffs = e.fft.Coefficients(e.coeffs, e.frame)
		for k, c := range e.coeffs {
			re, im := real(c), imag(c)
			e.power[k] = re*re + im*im
		}

		mel := make([]float32, cfg.NumMels)
		for m, filter := range e.melBank {
			sum := 0.0
			for k, w := range filter {
				sum += w * e.power[k]
			}
			if sum < 1e-10 {
				sum = 1e-10
			}
			mel[m] = float32(math.Log(sum))
		}
		out[t] = mel
	}
	return out
}
