package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Capturer records mono audio from the default input device.
type Capturer struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	channels   uint32

	mu  sync.Mutex
	buf []float32
}

// NewCapturer initializes the audio backend. Call Close() when done.
func NewCapturer(sampleRate, channels int) (*Capturer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: invalid capture format %d Hz x %d", sampleRate, channels)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	return &Capturer{
		ctx:        ctx,
		sampleRate: uint32(sampleRate),
		channels:   uint32(channels),
	}, nil
}

// Record captures for d, or until ctx is done, and returns the mono clip.
func (c *Capturer) Record(ctx context.Context, d time.Duration) (Clip, error) {
	c.mu.Lock()
	c.buf = c.buf[:0]
	c.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.sampleRate

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: c.onData,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("initializing capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return Clip{}, fmt.Errorf("starting capture device: %w", err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := device.Stop(); err != nil {
		return Clip{}, fmt.Errorf("stopping capture device: %w", err)
	}

	c.mu.Lock()
	samples := make([]float32, len(c.buf))
	copy(samples, c.buf)
	c.mu.Unlock()

	return Clip{Samples: samples, SampleRate: int(c.sampleRate)}, ctx.Err()
}

// Close releases the audio backend.
func (c *Capturer) Close() error {
	if c.ctx == nil {
		return nil
	}
	if err := c.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	c.ctx.Free()
	c.ctx = nil
	return nil
}

// onData is the malgo callback; pSample holds interleaved little-endian float32 frames.
func (c *Capturer) onData(_, pSample []byte, frameCount uint32) {
	mono := mixFrames(bytesToFloat32(pSample, frameCount*c.channels), int(c.channels))

	c.mu.Lock()
	c.buf = append(c.buf, mono...)
	c.mu.Unlock()
}

// mixFrames averages interleaved float frames into mono.
func mixFrames(interleaved []float32, channels int) []float32 {
	if channels == 1 {
		return interleaved
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
