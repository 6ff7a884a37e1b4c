// Package envelope provides the time-varying gain control used by voices.
//
// A [Param] holds a single linear segment evaluated against the playback
// clock. Scheduling a new [Event] replaces the segment, starting from the
// value the old one had reached at that instant, so ramps never queue and
// never jump.
package envelope

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/MrWong99/ambisynth/pkg/dsp"
)

// Event is a request to move a [Param] linearly to Target over Duration
// seconds. A zero Duration sets the level immediately.
type Event struct {
	Target   float64
	Duration float64
}

// segment is an immutable linear ramp. Before start it holds from, after end
// it holds to.
type segment struct {
	start, end float64
	from, to   float64
}

func (s *segment) at(t float64) float64 {
	if t >= s.end {
		return s.to
	}
	if t <= s.start {
		return s.from
	}
	frac := (t - s.start) / (s.end - s.start)
	return s.from + (s.to-s.from)*frac
}

// Param is a gain value in [0, 1] driven by linear ramps.
//
// [Param.Value] is lock-free and may be called from the render goroutine
// while the control path schedules events. Calls that schedule ([Param.Schedule],
// [Param.Ramp], [Param.Set]) must be serialized by the caller.
type Param struct {
	seg atomic.Pointer[segment]
}

// NewParam returns a Param holding initial (clamped to [0, 1]).
func NewParam(initial float64) *Param {
	p := &Param{}
	v := clamp(initial)
	p.seg.Store(&segment{start: math.Inf(-1), end: math.Inf(-1), from: v, to: v})
	return p
}

// Value returns the level at playback time t.
func (p *Param) Value(t float64) float64 {
	return p.seg.Load().at(t)
}

// Target returns the level the current segment ends at.
func (p *Param) Target() float64 {
	return p.seg.Load().to
}

// EndTime returns the playback time at which the current segment completes.
func (p *Param) EndTime() float64 {
	return p.seg.Load().end
}

// Schedule cancels any ramp in progress and starts ev at playback time now.
// The target is clamped to [0, 1]; a negative or non-finite duration is
// rejected.
func (p *Param) Schedule(now float64, ev Event) error {
	if ev.Duration < 0 || math.IsNaN(ev.Duration) || math.IsInf(ev.Duration, 0) {
		return fmt.Errorf("envelope: ramp duration %v: %w", ev.Duration, dsp.ErrInvalidParameter)
	}
	if math.IsNaN(ev.Target) {
		return fmt.Errorf("envelope: ramp target is NaN: %w", dsp.ErrInvalidParameter)
	}
	target := clamp(ev.Target)
	if ev.Duration == 0 {
		p.seg.Store(&segment{start: now, end: now, from: target, to: target})
		return nil
	}
	p.seg.Store(&segment{
		start: now,
		end:   now + ev.Duration,
		from:  p.Value(now),
		to:    target,
	})
	return nil
}

// Ramp is shorthand for Schedule(now, Event{target, duration}).
func (p *Param) Ramp(now, target, duration float64) error {
	return p.Schedule(now, Event{Target: target, Duration: duration})
}

// Set jumps to level immediately, cancelling any ramp.
func (p *Param) Set(now, level float64) {
	// A zero-duration event with a non-NaN target cannot fail.
	if math.IsNaN(level) {
		level = 0
	}
	_ = p.Schedule(now, Event{Target: level})
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
