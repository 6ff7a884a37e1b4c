// Package audio defines the interfaces that connect the synthesis engines to
// a real-time audio output, and the PCM helpers shared by output backends.
//
// The three primary abstractions are:
//
//   - [Backend]: an explicitly owned handle to an audio output. It reports
//     the sample rate, exposes the monotonically increasing playback clock,
//     and pulls samples from attached renderers on its own goroutine.
//   - [Renderer]: anything that can fill a block of mono samples for a given
//     playback time. Engines attach their [Mixer] to a backend.
//   - [Voice]: one sounding generator with its own gain, summed by a [Mixer].
//
// Implementations live in sub-packages (audio/device for a sound device,
// audio/headless for device-less rendering). This package lives under pkg/
// so that third-party outputs can implement [Backend].
package audio

import (
	"errors"
)

// ErrEngineUnavailable is returned by engine operations when the backend has
// not been initialised or has been closed. Callers should treat it as "no
// sound" rather than a failure.
var ErrEngineUnavailable = errors.New("audio engine unavailable")

// Clock reports the playback time in seconds. The value is monotonically
// non-decreasing and advances as samples are rendered.
type Clock interface {
	Now() float64
}

// Renderer produces mono samples in [-1, 1].
//
// Render is called from the backend's real-time goroutine. Implementations
// must not block, perform I/O, or allocate per sample. start is the playback
// time of buf[0]; each subsequent sample is 1/sampleRate seconds later.
// Render overwrites buf.
type Renderer interface {
	Render(buf []float32, start float64, sampleRate int)
}

// RendererFunc adapts a plain function to [Renderer].
type RendererFunc func(buf []float32, start float64, sampleRate int)

// Render implements [Renderer].
func (f RendererFunc) Render(buf []float32, start float64, sampleRate int) {
	f(buf, start, sampleRate)
}

// Backend is an explicitly owned handle to a real-time audio output.
//
// A Backend is created by its package constructor, becomes [Backend.Ready]
// once [Backend.Start] succeeds, and stops producing sound after
// [Backend.Close]. Engines receive the handle in their constructors instead
// of reaching for a global.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	Clock

	// SampleRate returns the output sample rate in Hz.
	SampleRate() int

	// Ready reports whether the backend is initialised and pulling samples.
	// Engines refuse to start voices on a backend that is not ready.
	Ready() bool

	// Attach adds r to the set of renderers whose output is summed into the
	// stream. The returned function detaches r; it is safe to call more than
	// once.
	Attach(r Renderer) (detach func())

	// Start begins pulling samples from attached renderers.
	Start() error

	// Close stops output and releases the device. It is safe to call Close
	// more than once; subsequent calls are no-ops and return nil.
	Close() error
}
