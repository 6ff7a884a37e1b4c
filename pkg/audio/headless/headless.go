// Package headless provides an [audio.Backend] that renders without a sound
// device. Its clock advances only as samples are rendered: either explicitly
// via [Backend.Advance], which makes playback fully deterministic in tests,
// or at wall-clock pace when created with [WithRealtime].
package headless

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Backend = (*Backend)(nil)

// DefaultBlockSize is the number of frames rendered per pull.
const DefaultBlockSize = 256

// ErrClosed is returned by [Backend.Start] after [Backend.Close].
var ErrClosed = errors.New("headless: backend closed")

// Option configures a [Backend] during construction.
type Option func(*Backend)

// WithBlockSize sets the number of frames rendered per pull.
func WithBlockSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.blockSize = n
		}
	}
}

// WithRealtime makes [Backend.Start] launch a goroutine that renders one
// block per block period, approximating a sound card's pull rate.
func WithRealtime() Option {
	return func(b *Backend) { b.realtime = true }
}

// WithSink registers fn to receive every rendered block. The slice is only
// valid for the duration of the call.
func WithSink(fn func([]float32)) Option {
	return func(b *Backend) { b.sink = fn }
}

// Backend is a device-less [audio.Backend].
type Backend struct {
	*audio.Bus

	blockSize int
	realtime  bool
	sink      func([]float32)

	pullMu sync.Mutex // serializes Bus.Pull
	block  []float32

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a headless backend at sampleRate. It is not [Backend.Ready]
// until [Backend.Start] is called.
func New(sampleRate int, opts ...Option) *Backend {
	b := &Backend{
		Bus:       audio.NewBus(sampleRate),
		blockSize: DefaultBlockSize,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	b.block = make([]float32, b.blockSize)
	return b
}

// Start marks the backend ready and, in realtime mode, starts the render
// goroutine. Starting twice is a no-op.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	b.started = true
	if b.realtime {
		b.wg.Add(1)
		go b.run()
	}
	return nil
}

// Ready reports whether the backend has been started and not closed.
func (b *Backend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started && !b.closed
}

// Advance renders enough frames to move the clock forward by seconds and
// returns the rendered samples.
func (b *Backend) Advance(seconds float64) []float32 {
	n := int(math.Round(seconds * float64(b.SampleRate())))
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)

	b.pullMu.Lock()
	defer b.pullMu.Unlock()
	for off := 0; off < n; off += b.blockSize {
		end := min(off+b.blockSize, n)
		b.Pull(out[off:end])
		if b.sink != nil {
			b.sink(out[off:end])
		}
	}
	return out
}

// Close stops the render goroutine. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// run renders one block per block period until Close.
func (b *Backend) run() {
	defer b.wg.Done()

	period := time.Duration(float64(b.blockSize) / float64(b.SampleRate()) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pullMu.Lock()
			b.Pull(b.block)
			if b.sink != nil {
				b.sink(b.block)
			}
			b.pullMu.Unlock()
		}
	}
}
