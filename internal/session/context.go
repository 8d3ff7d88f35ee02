package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chaz8081/audioembed/internal/audio"
	"github.com/chaz8081/audioembed/internal/engine"
)

// State is the configuration state of a Context.
type State int

const (
	Unconfigured State = iota
	Configured
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Embeddings is an immutable row-major matrix of embedding values.
type Embeddings struct {
	Rows  int
	Width int
	Data  []float32 // len == Rows*Width
}

// Row returns a copy of row i.
func (e *Embeddings) Row(i int) []float32 {
	out := make([]float32, e.Width)
	copy(out, e.Data[i*e.Width:(i+1)*e.Width])
	return out
}

// flatten validates rows and packs them row-major.
func flatten(rows [][]float32) (*Embeddings, error) {
	if len(rows) == 0 {
		return nil, errors.New("engine produced no embeddings")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.New("engine produced zero-width embeddings")
	}
	data := make([]float32, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("engine produced ragged embeddings: row %d has %d values, want %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return &Embeddings{Rows: len(rows), Width: width, Data: data}, nil
}

// Context is one independent inference session: an optional bound engine,
// the last successful result and the last error text.
//
// Configure and Run must not overlap on the same Context; an overlapping
// call fails with ErrBusy. Reads may happen at any time.
type Context struct {
	id        Handle
	newEngine engine.Factory
	busy      atomic.Bool

	mu        sync.Mutex
	eng       engine.Engine
	modelPath string
	result    *Embeddings
	lastErr   string
}

func newContext(newEngine engine.Factory) *Context {
	return &Context{newEngine: newEngine}
}

// Handle returns the registry handle of c.
func (c *Context) Handle() Handle { return c.id }

// State reports whether a model is bound.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return Unconfigured
	}
	return Configured
}

// ModelPath returns the path of the bound model, or "".
func (c *Context) ModelPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelPath
}

// Configure binds a freshly created engine to modelPath. On failure the
// previous engine, model and result stay in place and the error text is set.
func (c *Context) Configure(ctx context.Context, modelPath string) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	_, span := tracer.Start(ctx, "session.Configure", trace.WithAttributes(
		attribute.Int("context", int(c.id)),
		attribute.String("model", modelPath),
	))
	defer span.End()

	eng := c.newEngine()
	if err := invoke(func() error { return eng.Configure(modelPath) }); err != nil {
		closeEngine(c.id, eng)
		cerr := &ConfigError{ModelPath: modelPath, Err: err}
		c.setError(cerr.Error())
		recordErrorAndStatus(span, cerr)
		slog.Warn("[session] configure failed", "context", c.id, "model", modelPath, "error", err)
		return cerr
	}

	c.mu.Lock()
	old := c.eng
	c.eng = eng
	c.modelPath = modelPath
	c.result = nil
	c.lastErr = ""
	c.mu.Unlock()

	closeEngine(c.id, old)
	recordErrorAndStatus(span, nil)
	slog.Info("[session] model configured", "context", c.id, "model", modelPath)
	return nil
}

// Run decodes audioPath at sampleRate and infers embeddings from it. The
// previous result and error are cleared first; afterwards exactly one of
// them is set, except for ErrNotConfigured which leaves both empty.
func (c *Context) Run(ctx context.Context, audioPath string, sampleRate, quality int) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	eng := c.eng
	c.result = nil
	c.lastErr = ""
	c.mu.Unlock()

	start := time.Now()
	if eng == nil {
		recordRun(ctx, outcomeNotConfigured, 0)
		return ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "session.Run", trace.WithAttributes(
		attribute.Int("context", int(c.id)),
		attribute.String("audio", audioPath),
		attribute.Int("sample_rate", sampleRate),
		attribute.Int("quality", quality),
	))
	defer span.End()

	var clip audio.Clip
	err := invoke(func() (err error) {
		clip, err = eng.DecodeAndResample(ctx, audioPath, sampleRate, quality)
		return err
	})
	if err != nil {
		return c.fail(ctx, span, start, outcomeEngineFailure, engineError("decode", err))
	}
	if clip.Empty() {
		return c.fail(ctx, span, start, outcomeEmptyAudio, ErrEmptyAudio)
	}
	decoded := time.Since(start)

	var rows [][]float32
	err = invoke(func() (err error) {
		rows, err = eng.Infer(ctx, clip)
		return err
	})
	if err != nil {
		return c.fail(ctx, span, start, outcomeEngineFailure, engineError("infer", err))
	}
	emb, err := flatten(rows)
	if err != nil {
		return c.fail(ctx, span, start, outcomeEngineFailure, engineError("infer", err))
	}

	c.mu.Lock()
	c.result = emb
	c.mu.Unlock()

	elapsed := time.Since(start)
	recordRun(ctx, outcomeOK, elapsed)
	recordErrorAndStatus(span, nil)
	slog.Info("[session] inference completed",
		"context", c.id,
		"audio", audioPath,
		"rows", emb.Rows,
		"width", emb.Width,
		"decode", decoded,
		"total", elapsed,
	)
	return nil
}

func (c *Context) fail(ctx context.Context, span trace.Span, start time.Time, outcome string, err error) error {
	c.setError(err.Error())
	recordRun(ctx, outcome, time.Since(start))
	recordErrorAndStatus(span, err)
	slog.Warn("[session] inference failed", "context", c.id, "outcome", outcome, "error", err)
	return err
}

func (c *Context) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

// LastError returns the pending error text, or "".
func (c *Context) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ErrorLength returns the buffer size FillError needs: the error text plus
// a terminating zero byte, or 0 when no error is pending.
func (c *Context) ErrorLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == "" {
		return 0
	}
	return len(c.lastErr) + 1
}

// FillError copies the error text and a terminating zero byte into buf.
// With no error pending it writes a single zero byte. Nothing is written
// when buf is too small.
func (c *Context) FillError(buf []byte) error {
	msg := c.LastError()
	need := len(msg) + 1
	if len(buf) < need {
		return fmt.Errorf("%w: error text needs %d bytes, got %d", ErrBufferTooSmall, need, len(buf))
	}
	n := copy(buf, msg)
	buf[n] = 0
	return nil
}

// ResultShape returns (rows, width) of the last result, or (0, 0).
func (c *Context) ResultShape() (rows, width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return 0, 0
	}
	return c.result.Rows, c.result.Width
}

// ResultLen returns rows*width of the last result.
func (c *Context) ResultLen() int {
	rows, width := c.ResultShape()
	return rows * width
}

// FillResult copies the last result into buf row-major. Nothing is
// written when buf is shorter than ResultLen.
func (c *Context) FillResult(buf []float32) error {
	c.mu.Lock()
	res := c.result
	c.mu.Unlock()

	if res == nil {
		return nil
	}
	if len(buf) < len(res.Data) {
		return fmt.Errorf("%w: result needs %d values, got %d", ErrBufferTooSmall, len(res.Data), len(buf))
	}
	copy(buf, res.Data)
	return nil
}

// Result returns the last result, or nil. The returned value must not be modified.
func (c *Context) Result() *Embeddings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// release closes the bound engine. Called once the last reference is gone.
func (c *Context) release() {
	c.mu.Lock()
	eng := c.eng
	c.eng = nil
	c.modelPath = ""
	c.result = nil
	c.mu.Unlock()
	closeEngine(c.id, eng)
}

func closeEngine(id Handle, eng engine.Engine) {
	if eng == nil {
		return
	}
	if err := invoke(eng.Close); err != nil {
		slog.Warn("[session] closing engine", "context", id, "error", err)
	}
}
