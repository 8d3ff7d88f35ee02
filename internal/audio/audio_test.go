package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestWriteWAVDecodeFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := sine(1600, 16000, 440)

	if err := WriteWAV(path, in, 16000); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}

	clip, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if len(clip.Samples) != len(in) {
		t.Fatalf("len(Samples) = %d, want %d", len(clip.Samples), len(in))
	}
	for i := range in {
		if d := math.Abs(float64(clip.Samples[i] - in[i])); d > 1e-3 {
			t.Fatalf("Samples[%d] = %f, want %f", i, clip.Samples[i], in[i])
		}
	}
	if got := clip.Duration().Milliseconds(); got != 100 {
		t.Errorf("Duration() = %dms, want 100ms", got)
	}
}

func TestDecodeFileDownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{16384, 0, -16384, -16384, 8192, 24576},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	f.Close()

	clip, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	want := []float32{0.25, -0.5, 0.5}
	if len(clip.Samples) != len(want) {
		t.Fatalf("len(Samples) = %d, want %d", len(clip.Samples), len(want))
	}
	for i := range want {
		if clip.Samples[i] != want[i] {
			t.Errorf("Samples[%d] = %f, want %f", i, clip.Samples[i], want[i])
		}
	}
}

func TestDecodeFileEmptyWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := WriteWAV(path, nil, 16000); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}

	clip, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if !clip.Empty() {
		t.Errorf("Empty() = false, want true (%d samples)", len(clip.Samples))
	}
}

func TestDecodeFileRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := DecodeFile(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("DecodeFile() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeFileMissing(t *testing.T) {
	if _, err := DecodeFile("/nonexistent/clip.wav"); err == nil {
		t.Error("DecodeFile() should fail for a missing file")
	}
}

func TestDownmix8Bit(t *testing.T) {
	got := downmix([]int{128, 255, 0}, 1, 8)
	want := []float32{0, 127.0 / 128, -1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("downmix[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestResampleLength(t *testing.T) {
	in := sine(44100, 44100, 440)

	for q := QualityBestSinc; q <= QualityLinear; q++ {
		out, err := Resample(in, 44100, 16000, q)
		if err != nil {
			t.Fatalf("Resample(quality=%d) error = %v", q, err)
		}
		if len(out) != 16000 {
			t.Errorf("Resample(quality=%d) len = %d, want 16000", q, len(out))
		}
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out, err := Resample(in, 16000, 16000, QualityLinear)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	out[0] = 9
	if in[0] != 0.1 {
		t.Error("Resample() at equal rates should not alias its input")
	}
}

func TestResampleLinearInterpolates(t *testing.T) {
	out, err := Resample([]float32{0, 1}, 1, 3, QualityLinear)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	want := []float32{0, 0.2, 0.4, 0.6, 0.8, 1}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestResampleRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name             string
		from, to, qualty int
	}{
		{"zero source rate", 0, 16000, 4},
		{"negative target rate", 16000, -1, 4},
		{"quality too high", 44100, 16000, 5},
		{"quality negative", 44100, 16000, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resample([]float32{0}, tt.from, tt.to, tt.qualty); err == nil {
				t.Error("Resample() expected error")
			}
		})
	}
}

func TestMixFrames(t *testing.T) {
	got := mixFrames([]float32{1, 0, 0.5, 0.5}, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("mixFrames() = %v, want [0.5 0.5]", got)
	}
}

func TestBytesToFloat32(t *testing.T) {
	// 1.0 = 0x3F800000 little-endian
	data := []byte{0x00, 0x00, 0x80, 0x3F}
	samples := bytesToFloat32(data, 1)

	if len(samples) != 1 {
		t.Fatalf("bytesToFloat32() returned %d samples, want 1", len(samples))
	}
	if samples[0] != 1.0 {
		t.Errorf("bytesToFloat32() = %f, want 1.0", samples[0])
	}
}

func TestBytesToFloat32Truncated(t *testing.T) {
	samples := bytesToFloat32([]byte{0x00, 0x00, 0x80}, 1)
	if len(samples) != 0 {
		t.Errorf("bytesToFloat32() on short input returned %d samples, want 0", len(samples))
	}
}

func TestNewCapturerAndClose(t *testing.T) {
	c, err := NewCapturer(16000, 1)
	if err != nil {
		t.Skipf("audio backend unavailable: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewCapturerRejectsBadFormat(t *testing.T) {
	if _, err := NewCapturer(0, 1); err == nil {
		t.Error("NewCapturer(0, 1) expected error")
	}
}
