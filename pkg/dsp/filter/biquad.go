// Package filter implements the second-order IIR (biquad) filters used to
// shape noise voices. Coefficients follow the standard RBJ cookbook design.
package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/ambisynth/pkg/dsp"
)

// Kind selects the frequency response of a [Biquad].
type Kind int

const (
	// Lowpass passes energy below the cutoff and attenuates above it.
	Lowpass Kind = iota

	// Bandpass passes a band centred on the cutoff whose width is inversely
	// proportional to Q. Peak gain is 0 dB.
	Bandpass
)

// String returns the lower-case name of the filter kind.
func (k Kind) String() string {
	switch k {
	case Lowpass:
		return "lowpass"
	case Bandpass:
		return "bandpass"
	default:
		return "unknown"
	}
}

// ParseKind converts a case-insensitive filter name into a [Kind].
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowpass":
		return Lowpass, nil
	case "bandpass":
		return Bandpass, nil
	}
	return 0, fmt.Errorf("filter: unknown kind %q: %w", s, dsp.ErrInvalidParameter)
}

// Biquad is a single-channel Direct Form I biquad. Its coefficients are fixed
// at construction; only the delay-line state changes while processing.
type Biquad struct {
	kind   Kind
	cutoff float64
	q      float64

	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// New designs a biquad of the given kind. cutoff must lie in (0, Nyquist)
// and q must be positive.
func New(kind Kind, sampleRate int, cutoffHz, q float64) (*Biquad, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("filter: sample rate %d: %w", sampleRate, dsp.ErrInvalidParameter)
	}
	nyquist := float64(sampleRate) / 2
	if !(cutoffHz > 0) || cutoffHz >= nyquist {
		return nil, fmt.Errorf("filter: cutoff %v Hz outside (0, %v): %w", cutoffHz, nyquist, dsp.ErrInvalidParameter)
	}
	if !(q > 0) || math.IsInf(q, 1) {
		return nil, fmt.Errorf("filter: q %v: %w", q, dsp.ErrInvalidParameter)
	}

	omega := 2 * math.Pi * cutoffHz / float64(sampleRate)
	sinOmega, cosOmega := math.Sincos(omega)
	alpha := sinOmega / (2 * q)

	var b0, b1, b2 float64
	switch kind {
	case Lowpass:
		b0 = (1 - cosOmega) / 2
		b1 = 1 - cosOmega
		b2 = (1 - cosOmega) / 2
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		return nil, fmt.Errorf("filter: kind %d: %w", int(kind), dsp.ErrInvalidParameter)
	}
	a0 := 1 + alpha
	a1 := -2 * cosOmega
	a2 := 1 - alpha

	return &Biquad{
		kind:   kind,
		cutoff: cutoffHz,
		q:      q,
		b0:     b0 / a0,
		b1:     b1 / a0,
		b2:     b2 / a0,
		a1:     a1 / a0,
		a2:     a2 / a0,
	}, nil
}

// Kind returns the filter kind.
func (b *Biquad) Kind() Kind { return b.kind }

// Cutoff returns the cutoff (or centre) frequency in Hz.
func (b *Biquad) Cutoff() float64 { return b.cutoff }

// Q returns the resonance.
func (b *Biquad) Q() float64 { return b.q }

// Reset clears the delay lines.
func (b *Biquad) Reset() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// Process filters a single sample.
func (b *Biquad) Process(x0 float64) float64 {
	y0 := b.b0*x0 + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2 = b.x1
	b.x1 = x0
	b.y2 = b.y1
	b.y1 = y0
	return y0
}

// ProcessBuffer filters buf in place. No allocations.
func (b *Biquad) ProcessBuffer(buf []float32) {
	for i, x := range buf {
		buf[i] = float32(b.Process(float64(x)))
	}
}

// Apply runs signal through a freshly designed filter and returns the
// filtered copy. The input is not modified.
func Apply(kind Kind, sampleRate int, cutoffHz, q float64, signal []float32) ([]float32, error) {
	bq, err := New(kind, sampleRate, cutoffHz, q)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(signal))
	copy(out, signal)
	bq.ProcessBuffer(out)
	return out, nil
}
