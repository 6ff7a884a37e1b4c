// Package mock provides in-memory mock implementations of the [audio.Backend]
// and [audio.Mixer] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	backend := &mock.Backend{ReadyResult: true, SampleRateResult: 48000}
//	mixer := &mock.Mixer{}
//	engine := synth.New(backend, synth.WithMixer(mixer))
//	_ = engine.NoteOn(ctx, "C")
//	// mixer.AddCalls now holds the voice for middle C.
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/ambisynth/pkg/audio"
)

var (
	_ audio.Backend = (*Backend)(nil)
	_ audio.Mixer   = (*Mixer)(nil)
)

// ─── Backend ──────────────────────────────────────────────────────────────────

// Backend is a mock implementation of [audio.Backend].
// Set the exported Result fields before use; inspect the Call* fields after.
type Backend struct {
	mu sync.Mutex

	// NowResult is returned by [Backend.Now]. Tests move the playback clock
	// with [Backend.SetNow].
	NowResult float64

	// SampleRateResult is returned by [Backend.SampleRate]. Defaults to 48000
	// when zero.
	SampleRateResult int

	// ReadyResult is returned by [Backend.Ready].
	ReadyResult bool

	// StartError is returned by [Backend.Start].
	StartError error

	// CloseError is returned by [Backend.Close].
	CloseError error

	// Attached holds the renderers currently attached, in attach order.
	Attached []audio.Renderer

	// CallCountAttach records how many times Attach was called.
	CallCountAttach int

	// CallCountDetach records how many times a detach func took effect.
	CallCountDetach int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Now implements [audio.Clock]. Returns NowResult.
func (b *Backend) Now() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.NowResult
}

// SetNow sets the playback clock.
func (b *Backend) SetNow(t float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NowResult = t
}

// SampleRate implements [audio.Backend].
func (b *Backend) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SampleRateResult == 0 {
		return 48000
	}
	return b.SampleRateResult
}

// Ready implements [audio.Backend]. Returns ReadyResult.
func (b *Backend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ReadyResult
}

// SetReady sets ReadyResult.
func (b *Backend) SetReady(ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReadyResult = ready
}

// Attach implements [audio.Backend]. The renderer is appended to Attached and
// removed again by the returned detach func.
func (b *Backend) Attach(r audio.Renderer) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountAttach++
	b.Attached = append(b.Attached, r)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.CallCountDetach++
			if i := slices.Index(b.Attached, r); i >= 0 {
				b.Attached = slices.Delete(b.Attached, i, i+1)
			}
		})
	}
}

// Start implements [audio.Backend]. Returns StartError; on success the
// backend becomes ready.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountStart++
	if b.StartError != nil {
		return b.StartError
	}
	b.ReadyResult = true
	return nil
}

// Close implements [audio.Backend]. Returns CloseError and marks the backend
// not ready.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountClose++
	b.ReadyResult = false
	return b.CloseError
}

// ─── Mixer ────────────────────────────────────────────────────────────────────

// RemoveAtCall records the arguments of a single [Mixer.RemoveAt] invocation.
type RemoveAtCall struct {
	// Voice is the voice passed to RemoveAt.
	Voice audio.Voice
	// At is the playback time passed to RemoveAt.
	At float64
}

// Mixer is a mock implementation of [audio.Mixer]. It tracks membership like
// a real mixer but renders silence.
type Mixer struct {
	mu sync.Mutex

	// Live holds the voices currently in the mix, in insertion order.
	Live []audio.Voice

	// AddCalls records all voices passed to Add.
	AddCalls []audio.Voice

	// RemoveCalls records all voices passed to Remove.
	RemoveCalls []audio.Voice

	// RemoveAtCalls records all RemoveAt invocations.
	RemoveAtCalls []RemoveAtCall

	// CallCountRender records how many times Render was called.
	CallCountRender int
}

// Render implements [audio.Renderer]. Writes silence.
func (m *Mixer) Render(buf []float32, _ float64, _ int) {
	m.mu.Lock()
	m.CallCountRender++
	m.mu.Unlock()
	clear(buf)
}

// Add implements [audio.Mixer]. Records the call and adds v to Live.
func (m *Mixer) Add(v audio.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddCalls = append(m.AddCalls, v)
	if !slices.Contains(m.Live, v) {
		m.Live = append(m.Live, v)
	}
}

// Remove implements [audio.Mixer]. Records the call, stops v and drops it
// from Live.
func (m *Mixer) Remove(v audio.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls = append(m.RemoveCalls, v)
	if i := slices.Index(m.Live, v); i >= 0 {
		m.Live = slices.Delete(m.Live, i, i+1)
		v.Stop()
	}
}

// RemoveAt implements [audio.Mixer]. Records the call only; the voice stays
// in Live until [Mixer.Expire] is called.
func (m *Mixer) RemoveAt(v audio.Voice, t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveAtCalls = append(m.RemoveAtCalls, RemoveAtCall{Voice: v, At: t})
}

// Expire applies every recorded RemoveAt whose time is at or before now.
func (m *Mixer) Expire(now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.RemoveAtCalls {
		if c.At > now {
			continue
		}
		if i := slices.Index(m.Live, c.Voice); i >= 0 {
			m.Live = slices.Delete(m.Live, i, i+1)
			c.Voice.Stop()
		}
	}
}

// Len implements [audio.Mixer].
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Live)
}

// Voices returns a copy of Live.
func (m *Mixer) Voices() []audio.Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Live)
}

// Compile-time interface assertions.
var (
	_ audio.Backend = (*Backend)(nil)
	_ audio.Mixer   = (*Mixer)(nil)
)
