// Package synth implements the one-voice keyboard synthesizer.
//
// The engine is either Idle or Sustaining a single note. Pressing a new note
// cuts the previous voice off and attacks the new one; releasing the held
// note fades it out and hands the voice to the mixer for removal at the end
// of the fade.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/audio/mixer"
	"github.com/MrWong99/ambisynth/pkg/dsp"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

const (
	// DefaultSustain is the level a note's attack ramps to.
	DefaultSustain = 0.5

	// DefaultAttack is the note-on ramp duration.
	DefaultAttack = 100 * time.Millisecond

	// DefaultRelease is the note-off ramp duration.
	DefaultRelease = 100 * time.Millisecond
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("synth: engine closed")

	// ErrStaleEvent marks a note-off for a note that is not held. It is only
	// logged; NoteOff returns nil.
	ErrStaleEvent = errors.New("synth: stale note event")
)

// State is the synthesizer playback state. The zero value is Idle.
type State struct {
	// Note is the held note, empty while idle.
	Note string
}

// Sustaining reports whether a note is held.
func (s State) Sustaining() bool { return s.Note != "" }

// String returns "idle" or "sustaining(<note>)".
func (s State) String() string {
	if s.Note == "" {
		return "idle"
	}
	return "sustaining(" + s.Note + ")"
}

// Option configures an [Engine] during construction.
type Option func(*Engine)

// WithMixer replaces the default [mixer.VoiceMixer].
func WithMixer(m audio.Mixer) Option {
	return func(e *Engine) { e.mixer = m }
}

// WithSustain sets the attack target level, clamped to [0, 1].
func WithSustain(level float64) Option {
	return func(e *Engine) { e.sustain = min(max(level, 0), 1) }
}

// WithAttack sets the note-on ramp duration.
func WithAttack(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.attack = d
		}
	}
}

// WithRelease sets the note-off ramp duration.
func WithRelease(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.release = d
		}
	}
}

// WithWaveform sets the initial waveform. Invalid values are ignored.
func WithWaveform(w source.Waveform) Option {
	return func(e *Engine) {
		if w.IsValid() {
			e.waveform = w
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the synthesizer controller. It is safe for concurrent use.
type Engine struct {
	backend audio.Backend
	mixer   audio.Mixer
	owned   *mixer.VoiceMixer
	detach  func()
	metrics *observe.Metrics

	sustain float64
	attack  time.Duration
	release time.Duration

	mu        sync.Mutex
	waveform  source.Waveform
	note      string
	held      *voice.Voice
	releasing *voice.Voice // last released voice, until the mixer drops it
	closed    bool
}

// New creates an idle synthesizer that renders through backend. A nil
// backend is accepted; NoteOn then reports [audio.ErrEngineUnavailable].
func New(backend audio.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		sustain:  DefaultSustain,
		attack:   DefaultAttack,
		release:  DefaultRelease,
		waveform: source.Sine,
	}
	for _, o := range opts {
		o(e)
	}
	if e.mixer == nil {
		e.owned = mixer.New(mixer.WithCapacity(2))
		e.mixer = e.owned
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if backend != nil {
		e.detach = backend.Attach(e.mixer)
	}
	return e
}

// NoteOn starts note at the current waveform. A note already sounding,
// whether held or still releasing, is cut off without a release.
func (e *Engine) NoteOn(ctx context.Context, note string) error {
	name, err := ParseNote(note)
	if err != nil {
		return err
	}
	freq := noteFrequencies[name]

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.backend == nil || !e.backend.Ready() {
		e.metrics.RecordUnavailable(ctx, observe.EngineSynth, "note_on")
		return fmt.Errorf("synth: note on: %w", audio.ErrEngineUnavailable)
	}

	v, err := voice.New(voice.Config{
		Source:        voice.Oscillator,
		Waveform:      e.waveform,
		BaseFrequency: freq,
	}, e.backend.SampleRate(), 0)
	if err != nil {
		return fmt.Errorf("synth: note on %s: %w", name, err)
	}

	now := e.backend.Now()
	if _, err := v.Ramp(now, e.sustain, e.attack.Seconds()); err != nil {
		return fmt.Errorf("synth: attack %s: %w", name, err)
	}

	if e.releasing != nil {
		e.mixer.Remove(e.releasing)
		e.releasing = nil
	}
	if e.held != nil {
		e.mixer.Remove(e.held)
		e.metrics.AddActiveVoices(ctx, observe.EngineSynth, -1)
	}
	e.mixer.Add(v)
	prev := e.note
	e.held, e.note = v, name

	e.metrics.RecordNoteEvent(ctx, name, "on")
	e.metrics.AddActiveVoices(ctx, observe.EngineSynth, 1)
	e.metrics.RecordTransition(ctx, observe.EngineSynth, "sustaining")
	observe.Logger(ctx).Debug("synth note on", "note", name, "frequency", freq, "replaced", prev, "at", now)
	return nil
}

// NoteOff releases note if it is the held note. Releasing any other note is
// a stale event and is ignored.
func (e *Engine) NoteOff(ctx context.Context, note string) error {
	name, err := ParseNote(note)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held == nil || e.note != name {
		observe.Logger(ctx).Debug("synth note off ignored",
			"note", name, "held", e.note, "err", ErrStaleEvent)
		return nil
	}
	e.releaseLocked(ctx, "off")
	return nil
}

// Release releases whatever note is held, as when the pointer leaves the
// keyboard. It is a no-op while idle.
func (e *Engine) Release(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held == nil {
		return nil
	}
	e.releaseLocked(ctx, "release")
	return nil
}

func (e *Engine) releaseLocked(ctx context.Context, event string) {
	v, name := e.held, e.note
	now := e.backend.Now()

	end, err := v.Ramp(now, 0, e.release.Seconds())
	if err != nil || e.release == 0 {
		e.mixer.Remove(v)
		if err != nil {
			observe.Logger(ctx).Warn("synth: release failed, removing voice", "note", name, "err", err)
		}
	} else {
		e.mixer.RemoveAt(v, end)
		e.releasing = v
	}
	e.held, e.note = nil, ""

	e.metrics.RecordNoteEvent(ctx, name, event)
	e.metrics.AddActiveVoices(ctx, observe.EngineSynth, -1)
	e.metrics.RecordTransition(ctx, observe.EngineSynth, "idle")
	observe.Logger(ctx).Debug("synth note released", "note", name, "event", event, "until", end)
}

// SetWaveform selects the waveform for subsequent notes. A held note keeps
// its waveform.
func (e *Engine) SetWaveform(ctx context.Context, w source.Waveform) error {
	if !w.IsValid() {
		return fmt.Errorf("synth: waveform %d: %w", int(w), dsp.ErrInvalidParameter)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waveform = w
	observe.Logger(ctx).Debug("synth waveform set", "waveform", w)
	return nil
}

// Waveform returns the waveform used for the next note.
func (e *Engine) Waveform() source.Waveform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waveform
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Note: e.note}
}

// Close detaches from the backend and refuses further notes. Close is a hard
// stop: the held note and any note still in its release ramp fall silent at
// once, and the mixer the engine created is closed. Release the note and let
// the ramp finish first for a click-free end. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.held != nil {
		e.releaseLocked(context.Background(), "release")
	}
	if e.detach != nil {
		e.detach()
	}
	if e.owned != nil {
		_ = e.owned.Close()
	}
	return nil
}
