// Package voice builds the sounding unit shared by both engines: a source
// generator, an optional biquad filter and a gain envelope, evaluated one
// sample at a time against the playback clock.
//
// Filter parameters and waveform are fixed when the voice is created. Only
// the gain (and, for oscillators, the frequency) change afterwards.
package voice

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/dsp/envelope"
	"github.com/MrWong99/ambisynth/pkg/dsp/filter"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// Compile-time interface assertion.
var _ audio.Voice = (*Voice)(nil)

// ErrNotOscillator is returned by [Voice.SetFrequency] on a noise voice.
var ErrNotOscillator = errors.New("voice: not an oscillator")

// Voice is one live instance of a [Config].
//
// Sample is called from the render goroutine. Gain and frequency changes
// come from the control path and must be serialized by the owning engine.
type Voice struct {
	cfg Config

	gen  source.Generator
	osc  *source.Oscillator // nil for noise voices
	filt *filter.Biquad     // nil when unfiltered
	gain *envelope.Param

	stopped atomic.Bool
}

// New validates cfg and builds a voice at sampleRate whose gain starts at
// initialGain. Noise buffers are allocated here and never on the render
// path.
func New(cfg Config, sampleRate int, initialGain float64) (*Voice, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Voice{cfg: cfg, gain: envelope.NewParam(initialGain)}

	switch cfg.Source {
	case Noise:
		loop, err := source.NewNoiseLoop(sampleRate, cfg.NoiseDuration)
		if err != nil {
			return nil, fmt.Errorf("voice: %w", err)
		}
		v.gen = loop
	case Oscillator:
		osc, err := source.NewOscillator(cfg.Waveform, sampleRate, cfg.BaseFrequency)
		if err != nil {
			return nil, fmt.Errorf("voice: %w", err)
		}
		v.gen = osc
		v.osc = osc
	}

	if f := cfg.Filter; f != nil {
		bq, err := filter.New(f.Kind, sampleRate, f.CutoffHz, f.Q)
		if err != nil {
			return nil, fmt.Errorf("voice: %w", err)
		}
		v.filt = bq
	}
	return v, nil
}

// Config returns the configuration the voice was built from.
func (v *Voice) Config() Config { return v.cfg }

// Sample implements [audio.Voice].
func (v *Voice) Sample(t float64) float64 {
	if v.stopped.Load() {
		return 0
	}
	x := v.gen.Next()
	if v.filt != nil {
		x = v.filt.Process(x)
	}
	return x * v.gain.Value(t)
}

// Stop implements [audio.Voice]. The voice renders silence from then on.
func (v *Voice) Stop() { v.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (v *Voice) Stopped() bool { return v.stopped.Load() }

// Gain returns the gain at playback time t.
func (v *Voice) Gain(t float64) float64 { return v.gain.Value(t) }

// GainTarget returns the level the current gain ramp ends at.
func (v *Voice) GainTarget() float64 { return v.gain.Target() }

// Ramp cancels any ramp in progress and moves the gain linearly to target
// over duration seconds. It returns the playback time at which the ramp
// completes.
func (v *Voice) Ramp(now, target, duration float64) (float64, error) {
	if err := v.gain.Ramp(now, target, duration); err != nil {
		return 0, fmt.Errorf("voice: %w", err)
	}
	return v.gain.EndTime(), nil
}

// SetGain jumps the gain to level at now, cancelling any ramp.
func (v *Voice) SetGain(now, level float64) { v.gain.Set(now, level) }

// Frequency returns the oscillator frequency, or 0 for noise voices.
func (v *Voice) Frequency() float64 {
	if v.osc == nil {
		return 0
	}
	return v.osc.Frequency()
}

// SetFrequency retunes an oscillator voice.
func (v *Voice) SetFrequency(hz float64) error {
	if v.osc == nil {
		return ErrNotOscillator
	}
	if err := v.osc.SetFrequency(hz); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	return nil
}
