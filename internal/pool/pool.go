// Package pool keeps a fixed set of configured session contexts and lends
// them out to embed whole audio files into single pooled vectors.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/chaz8081/audioembed/internal/session"
)

// ErrClosed is returned by Embed after Close.
var ErrClosed = errors.New("pool: closed")

// Options configures a Pool.
type Options struct {
	ModelPath  string
	SampleRate int
	Quality    int
	Workers    int
	// RecycleAfter replaces a worker's context after that many runs; 0 never recycles.
	RecycleAfter int
}

type worker struct {
	id     uuid.UUID
	handle session.Handle
	runs   int
}

// Pool lends configured contexts to concurrent Embed calls.
type Pool struct {
	reg  *session.Registry
	opts Options
	idle chan *worker

	mu     sync.Mutex
	closed bool
	out    sync.WaitGroup
}

// New creates and configures opts.Workers contexts in reg.
func New(reg *session.Registry, opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("pool: workers must be > 0, got %d", opts.Workers)
	}

	p := &Pool{
		reg:  reg,
		opts: opts,
		idle: make(chan *worker, opts.Workers),
	}
	for range opts.Workers {
		w, err := p.newWorker()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.idle <- w
	}
	slog.Info("[pool] workers ready", "workers", opts.Workers, "model", opts.ModelPath)
	return p, nil
}

func (p *Pool) newWorker() (*worker, error) {
	h, err := p.reg.Create()
	if err != nil {
		return nil, fmt.Errorf("pool: create context: %w", err)
	}
	err = p.reg.Lookup(h, func(c *session.Context) error {
		return c.Configure(context.Background(), p.opts.ModelPath)
	})
	if err != nil {
		p.reg.Destroy(h)
		return nil, fmt.Errorf("pool: %w", err)
	}
	return &worker{id: uuid.New(), handle: h}, nil
}

// Embed runs inference on audioPath with an idle worker and returns the mean
// of the embedding rows. It blocks until a worker is free or ctx is done.
func (p *Pool) Embed(ctx context.Context, audioPath string) ([]float32, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.out.Add(1)
	p.mu.Unlock()
	defer p.out.Done()

	var w *worker
	select {
	case w = <-p.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer p.giveBack(w)

	var rows, width int
	var data []float32
	err := p.reg.Lookup(w.handle, func(c *session.Context) error {
		if err := c.Run(ctx, audioPath, p.opts.SampleRate, p.opts.Quality); err != nil {
			return err
		}
		rows, width = c.ResultShape()
		data = make([]float32, rows*width)
		return c.FillResult(data)
	})
	w.runs++
	if err != nil {
		return nil, fmt.Errorf("pool: embed %q: %w", audioPath, err)
	}

	slog.Debug("[pool] embedded", "worker", w.id, "context", w.handle, "audio", audioPath, "rows", rows)
	return MeanRows(data, rows, width), nil
}

// giveBack returns w to the idle set, swapping in a fresh context first when
// it is due for recycling.
func (p *Pool) giveBack(w *worker) {
	if p.opts.RecycleAfter > 0 && w.runs >= p.opts.RecycleAfter {
		fresh, err := p.newWorker()
		if err != nil {
			slog.Warn("[pool] recycling worker failed, keeping old context", "worker", w.id, "error", err)
		} else {
			p.reg.Destroy(w.handle)
			slog.Debug("[pool] worker recycled", "old", w.id, "new", fresh.id, "runs", w.runs)
			w = fresh
		}
	}
	p.idle <- w
}

// Close waits for in-flight Embed calls and destroys every context.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.out.Wait()
	for {
		select {
		case w := <-p.idle:
			p.reg.Destroy(w.handle)
		default:
			return
		}
	}
}

// MeanRows averages a row-major rows x width matrix over its rows.
func MeanRows(data []float32, rows, width int) []float32 {
	if rows == 0 || width == 0 {
		return nil
	}
	sum := make([]float64, width)
	row := make([]float64, width)
	for i := range rows {
		for j, v := range data[i*width : (i+1)*width] {
			row[j] = float64(v)
		}
		floats.Add(sum, row)
	}
	floats.Scale(1/float64(rows), sum)

	out := make([]float32, width)
	for j, v := range sum {
		out[j] = float32(v)
	}
	return out
}
