package capi

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/audioembed/internal/audio"
	"github.com/chaz8081/audioembed/internal/config"
	"github.com/chaz8081/audioembed/internal/engine"
	"github.com/chaz8081/audioembed/internal/session"
)

var (
	modelPath string
	tonePath  string
	emptyPath string
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "capi-test-*")
	if err != nil {
		panic(err)
	}

	modelPath = filepath.Join(dir, "model.msgpack")
	opts := engine.ModelOptions{Name: "capi", Dim: 8, NumMels: 16, PatchFrames: 30, PatchHop: 15}
	if err := engine.SaveModel(modelPath, engine.NewRandomModel(3, opts)); err != nil {
		panic(err)
	}

	samples := make([]float32, 22050)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/22050))
	}
	tonePath = filepath.Join(dir, "tone.wav")
	if err := audio.WriteWAV(tonePath, samples, 22050); err != nil {
		panic(err)
	}
	emptyPath = filepath.Join(dir, "empty.wav")
	if err := audio.WriteWAV(emptyPath, nil, 16000); err != nil {
		panic(err)
	}

	initOnce.Do(func() {
		f, err := engine.NewFactory(config.EngineConfig{Backend: "melproj"})
		if err != nil {
			panic(err)
		}
		registry = session.NewRegistry(f)
	})

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func errorText(t *testing.T, h int32) string {
	t.Helper()
	n := ErrorLength(h)
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	require.True(t, CopyError(h, buf))
	require.Zero(t, buf[n-1], "error text is zero-terminated")
	return string(buf[:n-1])
}

func TestCreateContextIssuesIncreasingHandles(t *testing.T) {
	h1 := CreateContext()
	h2 := CreateContext()
	defer DestroyContext(h1)
	defer DestroyContext(h2)

	assert.Positive(t, h1)
	assert.Greater(t, h2, h1)
}

func TestUnknownHandle(t *testing.T) {
	const h = int32(1 << 30)

	assert.False(t, DestroyContext(h))
	assert.False(t, ConfigureModel(h, modelPath))
	assert.Equal(t, StatusHandleNotFound, RunInference(h, tonePath, 16000, 4))
	assert.Zero(t, ErrorLength(h))
	assert.False(t, CopyError(h, make([]byte, 16)))
	assert.Zero(t, EmbeddingCount(h))
	assert.Zero(t, EmbeddingSize(h))
	assert.Zero(t, TotalEmbeddingElements(h))
	assert.False(t, CopyEmbeddings(h, make([]float32, 16)))
}

func TestRunBeforeConfigure(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	assert.Equal(t, StatusNotConfigured, RunInference(h, tonePath, 16000, 4))
	assert.Zero(t, EmbeddingCount(h))
	assert.Zero(t, EmbeddingSize(h))
	assert.Zero(t, ErrorLength(h))
}

func TestConfigureMissingModel(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	assert.False(t, ConfigureModel(h, "/nonexistent.pb"))
	assert.True(t, strings.HasPrefix(errorText(t, h), `failed to configure model "/nonexistent.pb"`))
}

func TestEmbedTone(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	require.True(t, ConfigureModel(h, modelPath))
	require.Equal(t, StatusOK, RunInference(h, tonePath, 16000, 4), errorText(t, h))

	rows, width := EmbeddingCount(h), EmbeddingSize(h)
	assert.Equal(t, int32(8), width)
	assert.Positive(t, rows)
	assert.Equal(t, rows*width, TotalEmbeddingElements(h))
	assert.Zero(t, ErrorLength(h))

	out := make([]float32, TotalEmbeddingElements(h))
	require.True(t, CopyEmbeddings(h, out))

	short := make([]float32, len(out)-1)
	assert.False(t, CopyEmbeddings(h, short))
	for _, v := range short {
		require.Zero(t, v, "short buffer untouched")
	}
}

func TestEmptyAudio(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	require.True(t, ConfigureModel(h, modelPath))
	assert.Equal(t, StatusFailed, RunInference(h, emptyPath, 16000, 4))
	assert.Equal(t, "audio buffer is empty after decoding", errorText(t, h))
	assert.Zero(t, EmbeddingCount(h))
}

func TestBadResampleQuality(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	require.True(t, ConfigureModel(h, modelPath))
	assert.Equal(t, StatusFailed, RunInference(h, tonePath, 16000, 9))
	assert.Equal(t, "audio: resample quality must be between 0 and 4, got 9", errorText(t, h))
}

func TestCopyErrorBufferTooSmall(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	require.False(t, ConfigureModel(h, "/nonexistent.pb"))
	n := ErrorLength(h)
	assert.False(t, CopyError(h, make([]byte, n-1)))
	assert.True(t, CopyError(h, make([]byte, n)))
}

func TestShutdownDestroysContexts(t *testing.T) {
	h1 := CreateContext()
	h2 := CreateContext()
	require.True(t, ConfigureModel(h1, modelPath))

	Shutdown()

	assert.False(t, DestroyContext(h1))
	assert.False(t, DestroyContext(h2))

	h3 := CreateContext()
	defer DestroyContext(h3)
	assert.Greater(t, h3, h2)
}

func TestCopyEmbeddingsWithoutResult(t *testing.T) {
	h := CreateContext()
	defer DestroyContext(h)

	assert.Zero(t, TotalEmbeddingElements(h))
	buf := []float32{7}
	assert.True(t, CopyEmbeddings(h, buf))
	assert.Equal(t, float32(7), buf[0], "nothing is written without a result")
	assert.True(t, CopyEmbeddings(h, nil))
}

func TestDefaultFactoryFallsBackToMelProj(t *testing.T) {
	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(config.EnvBackend, "onnx")

	f := defaultFactory()
	require.NotNil(t, f)
	eng := f()
	defer eng.Close()
	assert.IsType(t, &engine.MelProj{}, eng)
}

func TestDefaultFactoryUsesConfiguredBackend(t *testing.T) {
	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(config.EnvBackend, "exec")
	t.Setenv(config.EnvExecPath, "/usr/local/bin/infer")

	eng := defaultFactory()()
	defer eng.Close()
	assert.IsType(t, &engine.Exec{}, eng)
}
