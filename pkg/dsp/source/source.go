// Package source provides the raw signal generators used by voices: uniform
// noise buffers intended for looped playback and the four classic periodic
// waveforms.
//
// The package-level functions are pure (apart from the process-wide random
// source used for noise) and validate their parameters before allocating.
// [NoiseLoop] and [Oscillator] wrap them into stateful per-sample generators
// for the real-time render path.
package source

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/MrWong99/ambisynth/pkg/dsp"
)

// ErrInvalidParameter is returned when a frequency, duration, or sample rate
// is not strictly positive. It is the same value as [dsp.ErrInvalidParameter].
var ErrInvalidParameter = dsp.ErrInvalidParameter

// Waveform selects the shape of a periodic signal.
type Waveform int

const (
	// Sine is a smooth sinusoid.
	Sine Waveform = iota

	// Square alternates between 1 and -1 with a 50% duty cycle.
	Square

	// Sawtooth ramps linearly from -1 to 1 once per period.
	Sawtooth

	// Triangle ramps linearly -1 → 1 → -1 once per period.
	Triangle
)

// String returns the lower-case name of the waveform.
func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// IsValid reports whether w is one of the known waveforms.
func (w Waveform) IsValid() bool {
	return w >= Sine && w <= Triangle
}

// ParseWaveform converts a case-insensitive waveform name into a [Waveform].
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine":
		return Sine, nil
	case "square":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "triangle":
		return Triangle, nil
	}
	return 0, fmt.Errorf("source: unknown waveform %q: %w", s, ErrInvalidParameter)
}

// MarshalText implements [encoding.TextMarshaler].
func (w Waveform) MarshalText() ([]byte, error) {
	if !w.IsValid() {
		return nil, fmt.Errorf("source: invalid waveform %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (w *Waveform) UnmarshalText(text []byte) error {
	parsed, err := ParseWaveform(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// NoiseBuffer returns sampleRate*duration independent uniform samples in
// [-1, 1]. Parameters are validated before anything is allocated.
//
// The content is drawn from the process-wide random source and is therefore
// not reproducible. No effort is made to hide the seam when the buffer is
// looped.
func NoiseBuffer(sampleRate int, duration float64) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("source: noise buffer sample rate %d: %w", sampleRate, ErrInvalidParameter)
	}
	if !(duration > 0) || math.IsInf(duration, 1) {
		return nil, fmt.Errorf("source: noise buffer duration %v: %w", duration, ErrInvalidParameter)
	}

	n := int(float64(sampleRate) * duration)
	if n <= 0 {
		return nil, fmt.Errorf("source: noise buffer of %v s at %d Hz is empty: %w", duration, sampleRate, ErrInvalidParameter)
	}

	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(rand.Float64()*2 - 1)
	}
	return buf, nil
}

// Periodic returns the instantaneous amplitude in [-1, 1] of waveform w at
// frequency freqHz and time t (seconds).
func Periodic(w Waveform, freqHz, t float64) (float64, error) {
	if !(freqHz > 0) || math.IsInf(freqHz, 1) {
		return 0, fmt.Errorf("source: frequency %v: %w", freqHz, ErrInvalidParameter)
	}
	if !w.IsValid() {
		return 0, fmt.Errorf("source: waveform %d: %w", int(w), ErrInvalidParameter)
	}
	phase := freqHz * t
	phase -= math.Floor(phase)
	return shape(w, phase), nil
}

// shape evaluates waveform w at a phase in [0, 1).
func shape(w Waveform, phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}
