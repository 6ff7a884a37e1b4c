package source

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Generator produces one sample per call. Generators are owned by a single
// voice and advanced only from the render path.
type Generator interface {
	Next() float64
}

// NoiseLoop plays a pre-computed noise buffer in a loop.
type NoiseLoop struct {
	buf []float32
	pos int
}

// NewNoiseLoop allocates a noise buffer of the given duration and returns a
// generator that loops over it. All allocation happens here, never in
// [NoiseLoop.Next].
func NewNoiseLoop(sampleRate int, duration float64) (*NoiseLoop, error) {
	buf, err := NoiseBuffer(sampleRate, duration)
	if err != nil {
		return nil, err
	}
	return &NoiseLoop{buf: buf}, nil
}

// Len returns the loop length in samples.
func (n *NoiseLoop) Len() int { return len(n.buf) }

// Next returns the next sample, wrapping around at the end of the buffer.
func (n *NoiseLoop) Next() float64 {
	s := n.buf[n.pos]
	n.pos++
	if n.pos == len(n.buf) {
		n.pos = 0
	}
	return float64(s)
}

// Oscillator is a phase-accumulating periodic generator. The waveform is
// fixed at construction; the frequency may be changed concurrently with
// rendering via [Oscillator.SetFrequency].
type Oscillator struct {
	waveform   Waveform
	sampleRate float64
	freqBits   atomic.Uint64
	phase      float64
}

// NewOscillator creates an oscillator for waveform w at freqHz.
func NewOscillator(w Waveform, sampleRate int, freqHz float64) (*Oscillator, error) {
	if !w.IsValid() {
		return nil, fmt.Errorf("source: oscillator waveform %d: %w", int(w), ErrInvalidParameter)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("source: oscillator sample rate %d: %w", sampleRate, ErrInvalidParameter)
	}
	o := &Oscillator{waveform: w, sampleRate: float64(sampleRate)}
	if err := o.SetFrequency(freqHz); err != nil {
		return nil, err
	}
	return o, nil
}

// Waveform returns the oscillator's waveform.
func (o *Oscillator) Waveform() Waveform { return o.waveform }

// Frequency returns the current frequency in Hz.
func (o *Oscillator) Frequency() float64 {
	return math.Float64frombits(o.freqBits.Load())
}

// SetFrequency changes the oscillator frequency. The phase is preserved so
// the jump does not introduce a discontinuity in the phase accumulator.
func (o *Oscillator) SetFrequency(freqHz float64) error {
	if !(freqHz > 0) || math.IsInf(freqHz, 1) {
		return fmt.Errorf("source: oscillator frequency %v: %w", freqHz, ErrInvalidParameter)
	}
	o.freqBits.Store(math.Float64bits(freqHz))
	return nil
}

// Next returns the next sample and advances the phase by one sample period.
func (o *Oscillator) Next() float64 {
	s := shape(o.waveform, o.phase)
	o.phase += o.Frequency() / o.sampleRate
	if o.phase >= 1 {
		o.phase -= math.Floor(o.phase)
	}
	return s
}
