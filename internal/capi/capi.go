// Package capi is the primitive-typed surface over one process-wide session
// registry. Every function maps errors onto plain status values so the cgo
// exports in cmd/libaudioembed never see a Go error or panic.
package capi

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/chaz8081/audioembed/internal/config"
	"github.com/chaz8081/audioembed/internal/engine"
	"github.com/chaz8081/audioembed/internal/session"
)

// RunInference statuses.
const (
	StatusOK             int32 = 0
	StatusFailed         int32 = -1 // error text is available
	StatusNotConfigured  int32 = -2
	StatusHandleNotFound int32 = -3
	StatusBusy           int32 = -4
)

var (
	initOnce sync.Once
	registry *session.Registry
)

// Registry returns the process-wide registry, building it on first use.
func Registry() *session.Registry {
	initOnce.Do(func() {
		registry = session.NewRegistry(defaultFactory())
	})
	return registry
}

// defaultFactory builds the engine factory from AUDIOEMBED_CONFIG (or the
// default config path) plus environment overrides. Invalid configuration
// falls back to the built-in backend so the library still loads; the
// problem surfaces when a context is configured.
func defaultFactory() engine.Factory {
	cfg, err := config.LoadOrDefault(os.Getenv(config.EnvConfig))
	if err != nil {
		slog.Warn("[capi] loading config, using defaults", "error", err)
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Warn("[capi] applying environment overrides", "error", err)
	}

	f, err := engine.NewFactory(cfg.Engine)
	if err != nil {
		slog.Warn("[capi] engine backend unavailable, using melproj", "error", err)
		f = func() engine.Engine { return engine.NewMelProj() }
	}
	slog.Debug("[capi] registry initialized", "backend", cfg.Engine.Backend)
	return f
}

// CreateContext returns a new handle, or 0 when no handle can be issued.
func CreateContext() int32 {
	h, err := Registry().Create()
	if err != nil {
		slog.Error("[capi] create context", "error", err)
		return 0
	}
	return int32(h)
}

// DestroyContext releases handle. It reports false for unknown handles.
func DestroyContext(handle int32) bool {
	return Registry().Destroy(session.Handle(handle)) == nil
}

// ConfigureModel binds the context to modelPath. On false the error text
// explains why and any previous configuration remains.
func ConfigureModel(handle int32, modelPath string) bool {
	err := Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		return c.Configure(context.Background(), modelPath)
	})
	return err == nil
}

// RunInference decodes audioPath and computes its embeddings.
func RunInference(handle int32, audioPath string, sampleRate, resampleQuality int32) int32 {
	err := Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		return c.Run(context.Background(), audioPath, int(sampleRate), int(resampleQuality))
	})
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, session.ErrHandleNotFound):
		return StatusHandleNotFound
	case errors.Is(err, session.ErrNotConfigured):
		return StatusNotConfigured
	case errors.Is(err, session.ErrBusy):
		return StatusBusy
	default:
		return StatusFailed
	}
}

// ErrorLength returns the bytes CopyError needs including the terminator,
// or 0 when there is no error or the handle is unknown.
func ErrorLength(handle int32) int32 {
	var n int
	Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		n = c.ErrorLength()
		return nil
	})
	return clampInt32(n)
}

// CopyError writes the zero-terminated error text into buf.
func CopyError(handle int32, buf []byte) bool {
	err := Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		return c.FillError(buf)
	})
	return err == nil
}

// EmbeddingCount returns the number of result rows.
func EmbeddingCount(handle int32) int32 {
	rows, _ := shape(handle)
	return clampInt32(rows)
}

// EmbeddingSize returns the width of each result row.
func EmbeddingSize(handle int32) int32 {
	_, width := shape(handle)
	return clampInt32(width)
}

// TotalEmbeddingElements returns rows*width.
func TotalEmbeddingElements(handle int32) int32 {
	rows, width := shape(handle)
	return clampInt32(rows * width)
}

// CopyEmbeddings writes the result row-major into out. It fails without
// writing when out is shorter than TotalEmbeddingElements. With no result
// (TotalEmbeddingElements is 0) it succeeds and writes nothing, so callers
// must check the element count rather than the return value.
func CopyEmbeddings(handle int32, out []float32) bool {
	err := Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		return c.FillResult(out)
	})
	return err == nil
}

// Shutdown destroys every context. Handles issued later keep increasing.
func Shutdown() {
	Registry().Close()
}

func shape(handle int32) (rows, width int) {
	Registry().Lookup(session.Handle(handle), func(c *session.Context) error {
		rows, width = c.ResultShape()
		return nil
	})
	return rows, width
}

func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}
