// Package device provides an [audio.Backend] that plays through the system
// sound device using oto. The device pulls samples by calling
// [Backend.Read]; the attached renderers are summed there and the playback
// clock advances by the number of frames handed to the device.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Backend = (*Backend)(nil)

// DefaultBufferSize is the device buffer duration. Smaller values lower the
// latency of note attacks at the cost of underrun risk.
const DefaultBufferSize = 40 * time.Millisecond

// ErrClosed is returned by [Backend.Start] after [Backend.Close].
var ErrClosed = errors.New("device: backend closed")

// Option configures a [Backend] during construction.
type Option func(*Backend)

// WithFormat selects the sample encoding handed to the device.
func WithFormat(f audio.SampleFormat) Option {
	return func(b *Backend) { b.format = f }
}

// WithBufferSize sets the device buffer duration.
func WithBufferSize(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.bufferSize = d
		}
	}
}

// Backend is an oto-backed [audio.Backend]. Only one may exist per process,
// because oto allows a single context.
type Backend struct {
	*audio.Bus

	format     audio.SampleFormat
	bufferSize time.Duration

	otoCtx *oto.Context
	player *oto.Player

	samples []float32 // pre-allocated; only touched from Read

	mu      sync.Mutex // setup and control operations only
	started bool
	closed  bool
}

// New opens the sound device at sampleRate (mono) and waits until it is
// ready or ctx is done.
func New(ctx context.Context, sampleRate int, opts ...Option) (*Backend, error) {
	b := newBackend(sampleRate, opts...)

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       otoFormat(b.format),
		BufferSize:   b.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("device: open context: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("device: waiting for context: %w", ctx.Err())
	}
	b.otoCtx = otoCtx
	return b, nil
}

// newBackend builds a Backend without touching the device.
func newBackend(sampleRate int, opts ...Option) *Backend {
	b := &Backend{
		Bus:        audio.NewBus(sampleRate),
		format:     audio.Float32LE,
		bufferSize: DefaultBufferSize,
	}
	for _, o := range opts {
		o(b)
	}
	// Typical oto reads are a few KiB; grown on demand in Read.
	b.samples = make([]float32, 4096)
	return b
}

// Read implements [io.Reader] for the oto player. It is called from oto's
// goroutine and never blocks on the control path.
func (b *Backend) Read(p []byte) (int, error) {
	bps := b.format.BytesPerSample()
	n := len(p) / bps
	if n == 0 {
		return 0, nil
	}
	if len(b.samples) < n {
		b.samples = make([]float32, n)
	}
	samples := b.samples[:n]
	b.Pull(samples)
	return audio.Encode(p, samples, b.format), nil
}

// Start creates the player and begins playback. Starting twice is a no-op.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	if b.otoCtx == nil {
		return fmt.Errorf("device: start: %w", audio.ErrEngineUnavailable)
	}
	b.player = b.otoCtx.NewPlayer(b)
	b.player.Play()
	b.started = true
	return nil
}

// Ready reports whether the device is playing.
func (b *Backend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started && !b.closed && b.otoCtx.Err() == nil
}

// Err returns the device error reported by oto, if any.
func (b *Backend) Err() error {
	if b.otoCtx == nil {
		return audio.ErrEngineUnavailable
	}
	return b.otoCtx.Err()
}

// Close stops playback and suspends the device. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.player != nil {
		if err := b.player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device: close player: %w", err))
		}
		b.player = nil
	}
	if b.otoCtx != nil {
		if err := b.otoCtx.Suspend(); err != nil {
			errs = append(errs, fmt.Errorf("device: suspend: %w", err))
		}
	}
	return errors.Join(errs...)
}

func otoFormat(f audio.SampleFormat) oto.Format {
	if f == audio.Int16LE {
		return oto.FormatSignedInt16LE
	}
	return oto.FormatFloat32LE
}
