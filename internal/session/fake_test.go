package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chaz8081/audioembed/internal/audio"
	"github.com/chaz8081/audioembed/internal/engine"
)

// fakeScript is the behavior every fake engine follows.
type fakeScript struct {
	models     map[string]bool
	samples    int
	rows       [][]float32
	decodeErr  error
	// failAudio makes DecodeAndResample fail for the listed audio paths only.
	failAudio map[string]error
	inferErr   error
	inferPanic bool

	// When gate is non-nil, Infer signals entered and blocks until gate closes.
	gate    chan struct{}
	entered chan struct{}
}

// fakeBackend hands out engines following a shared, mutable script.
type fakeBackend struct {
	mu     sync.Mutex
	script fakeScript

	created atomic.Int32
	closed  atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{script: fakeScript{
		models:  map[string]bool{"good.model": true, "other.model": true},
		samples: 16000,
		rows:    matrix(2, 3),
	}}
}

func (b *fakeBackend) factory() engine.Factory {
	return func() engine.Engine {
		b.created.Add(1)
		return &fakeEngine{b: b}
	}
}

func (b *fakeBackend) set(fn func(s *fakeScript)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.script)
}

func (b *fakeBackend) snapshot() fakeScript {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.script
}

// gateInfer makes subsequent Infer calls block until the returned gate is closed.
func (b *fakeBackend) gateInfer() (gate, entered chan struct{}) {
	gate, entered = make(chan struct{}), make(chan struct{}, 1)
	b.set(func(s *fakeScript) {
		s.gate = gate
		s.entered = entered
	})
	return gate, entered
}

type fakeEngine struct {
	b      *fakeBackend
	model  string
	closed bool
}

func (e *fakeEngine) Configure(modelPath string) error {
	if !e.b.snapshot().models[modelPath] {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	e.model = modelPath
	return nil
}

func (e *fakeEngine) DecodeAndResample(_ context.Context, audioPath string, sampleRate, _ int) (audio.Clip, error) {
	s := e.b.snapshot()
	if s.decodeErr != nil {
		return audio.Clip{}, s.decodeErr
	}
	if err := s.failAudio[audioPath]; err != nil {
		return audio.Clip{}, err
	}
	if audioPath == "silence.wav" {
		return audio.Clip{SampleRate: sampleRate}, nil
	}
	return audio.Clip{Samples: make([]float32, s.samples), SampleRate: sampleRate}, nil
}

func (e *fakeEngine) Infer(_ context.Context, _ audio.Clip) ([][]float32, error) {
	s := e.b.snapshot()
	if s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	if e.closed {
		return nil, errors.New("engine used after close")
	}
	if s.inferPanic {
		panic("tensor arena overflow")
	}
	if s.inferErr != nil {
		return nil, s.inferErr
	}
	out := make([][]float32, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]float32(nil), r...)
	}
	return out, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	e.b.closed.Add(1)
	return nil
}

// matrix returns rows x width values where element (i, j) is i*width+j.
func matrix(rows, width int) [][]float32 {
	out := make([][]float32, rows)
	for i := range out {
		out[i] = make([]float32, width)
		for j := range out[i] {
			out[i][j] = float32(i*width + j)
		}
	}
	return out
}
