// Package speaker provides an [audio.Backend] that plays through the beep
// speaker. The bus is exposed as a [beep.Streamer]; the speaker goroutine
// pulls stereo frames from it and the mono mix is copied to both channels.
//
// Use it where the sound output is already shared with other beep
// streamers, or where oto's raw player is not wanted. Only one speaker may
// be initialised per process.
package speaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	beepspeaker "github.com/gopxl/beep/v2/speaker"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

var (
	_ audio.Backend = (*Backend)(nil)
	_ beep.Streamer = (*Backend)(nil)
)

// DefaultBufferSize is the speaker buffer duration.
const DefaultBufferSize = 50 * time.Millisecond

// ErrClosed is returned by [Backend.Start] after [Backend.Close].
var ErrClosed = errors.New("speaker: backend closed")

// Option configures a [Backend] during construction.
type Option func(*Backend)

// WithBufferSize sets the speaker buffer duration.
func WithBufferSize(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.bufferSize = d
		}
	}
}

// Backend streams the bus into the beep speaker.
type Backend struct {
	*audio.Bus

	bufferSize time.Duration
	mono       []float32 // only touched from Stream

	mu      sync.Mutex
	inited  bool
	started bool
	closed  bool
}

// New initialises the speaker at sampleRate.
func New(sampleRate int, opts ...Option) (*Backend, error) {
	b := newBackend(sampleRate, opts...)
	sr := beep.SampleRate(sampleRate)
	if err := beepspeaker.Init(sr, sr.N(b.bufferSize)); err != nil {
		return nil, fmt.Errorf("speaker: init at %d Hz: %w", sampleRate, err)
	}
	b.inited = true
	return b, nil
}

func newBackend(sampleRate int, opts ...Option) *Backend {
	b := &Backend{
		Bus:        audio.NewBus(sampleRate),
		bufferSize: DefaultBufferSize,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Stream implements [beep.Streamer]. It never drains: silence is streamed
// while nothing is attached.
func (b *Backend) Stream(samples [][2]float64) (int, bool) {
	if len(b.mono) < len(samples) {
		b.mono = make([]float32, len(samples))
	}
	mono := b.mono[:len(samples)]
	b.Pull(mono)
	for i, s := range mono {
		samples[i][0] = float64(s)
		samples[i][1] = float64(s)
	}
	return len(samples), true
}

// Err implements [beep.Streamer].
func (b *Backend) Err() error { return nil }

// Start hands the bus to the speaker. Starting twice is a no-op.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	if !b.inited {
		return fmt.Errorf("speaker: start: %w", audio.ErrEngineUnavailable)
	}
	beepspeaker.Play(b)
	b.started = true
	return nil
}

// Ready reports whether the speaker is streaming the bus.
func (b *Backend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started && !b.closed
}

// Close removes the bus from the speaker and shuts it down. It is
// idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.inited {
		beepspeaker.Clear()
		beepspeaker.Close()
	}
	return nil
}
