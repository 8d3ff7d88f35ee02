package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for files that are not PCM WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// DecodeFile reads a PCM WAV file and returns it downmixed to mono.
func DecodeFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	// IsValidFile rejects zero-length data chunks, which are valid empty audio here.
	d.ReadInfo()
	if err := d.Err(); err != nil || d.NumChans < 1 || d.BitDepth < 8 {
		return Clip{}, fmt.Errorf("audio: %q: %w", path, ErrUnsupportedFormat)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Clip{}, fmt.Errorf("audio: %q: wav format tag %d: %w", path, d.WavAudioFormat, ErrUnsupportedFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}

	return Clip{
		Samples:    downmix(buf.Data, channels, int(d.BitDepth)),
		SampleRate: int(d.SampleRate),
	}, nil
}

// downmix averages interleaved integer frames into normalized mono samples.
// 8-bit PCM is unsigned and centered on 128.
func downmix(data []int, channels, bitDepth int) []float32 {
	var offset, scale float64
	switch bitDepth {
	case 8:
		offset, scale = 128, 128
	default:
		offset, scale = 0, float64(int64(1)<<(bitDepth-1))
	}

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(data[i*channels+c]) - offset
		}
		out[i] = float32(sum / float64(channels) / scale)
	}
	return out
}
