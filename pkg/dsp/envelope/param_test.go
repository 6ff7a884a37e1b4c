package envelope_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/ambisynth/pkg/dsp"
	"github.com/MrWong99/ambisynth/pkg/dsp/envelope"
)

const eps = 1e-12

func TestRamp_Linear(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0)
	if err := p.Ramp(1.0, 0.5, 0.1); err != nil {
		t.Fatalf("Ramp: %v", err)
	}

	tests := []struct {
		t    float64
		want float64
	}{
		{0.5, 0},
		{1.0, 0},
		{1.05, 0.25},
		{1.1, 0.5},
		{2.0, 0.5},
	}
	for _, tc := range tests {
		if got := p.Value(tc.t); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Value(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
	if p.Target() != 0.5 {
		t.Errorf("Target() = %v, want 0.5", p.Target())
	}
	if math.Abs(p.EndTime()-1.1) > 1e-9 {
		t.Errorf("EndTime() = %v, want 1.1", p.EndTime())
	}
}

func TestRamp_CancelAndReplaceStartsFromCurrentValue(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0)
	_ = p.Ramp(0, 1, 1)

	// Halfway up, reverse towards zero.
	if err := p.Ramp(0.5, 0, 0.5); err != nil {
		t.Fatalf("Ramp: %v", err)
	}
	if got := p.Value(0.5); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Value at replacement = %v, want 0.5 (no jump)", got)
	}
	if got := p.Value(0.75); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("Value(0.75) = %v, want 0.25", got)
	}
	if got := p.Value(1.0); got != 0 {
		t.Errorf("Value(1.0) = %v, want 0", got)
	}
	// The first ramp towards 1 must not resume.
	if got := p.Value(5); got != 0 {
		t.Errorf("Value(5) = %v, old ramp leaked through", got)
	}
}

func TestSchedule_ZeroDurationIsImmediate(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0.2)
	_ = p.Ramp(0, 1, 10)
	if err := p.Schedule(3, envelope.Event{Target: 0.7}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for _, ts := range []float64{3, 3.0001, 9, 100} {
		if got := p.Value(ts); got != 0.7 {
			t.Errorf("Value(%v) = %v, want 0.7", ts, got)
		}
	}
}

func TestSchedule_ClampsTarget(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0)
	p.Set(0, 1.5)
	if got := p.Value(0); got != 1 {
		t.Errorf("Set(1.5) -> %v, want 1", got)
	}
	_ = p.Ramp(1, -0.2, 0.1)
	if got := p.Value(2); got != 0 {
		t.Errorf("ramp to -0.2 ended at %v, want 0", got)
	}
	if got := envelope.NewParam(-3).Value(0); got != 0 {
		t.Errorf("NewParam(-3) = %v, want 0", got)
	}
}

func TestSchedule_InvalidDuration(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0.3)
	for _, d := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		if err := p.Ramp(0, 1, d); !errors.Is(err, dsp.ErrInvalidParameter) {
			t.Errorf("Ramp(duration=%v) err = %v, want ErrInvalidParameter", d, err)
		}
	}
	if err := p.Ramp(0, math.NaN(), 1); !errors.Is(err, dsp.ErrInvalidParameter) {
		t.Errorf("Ramp(target=NaN) err = %v", err)
	}
	if got := p.Value(10); got != 0.3 {
		t.Errorf("rejected events changed the value: %v", got)
	}
}

// TestSchedule_NeverOvershoots drives random ramp sequences and checks that
// every observed value stays between 0 and the largest level involved.
func TestSchedule_NeverOvershoots(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for trial := range 200 {
		initial := rng.Float64()
		p := envelope.NewParam(initial)
		ceiling := initial
		now := 0.0

		for range 20 {
			now += rng.Float64() * 0.2
			target := rng.Float64()*1.4 - 0.2
			dur := 0.0
			if rng.IntN(4) > 0 {
				dur = rng.Float64() * 0.3
			}
			if err := p.Ramp(now, target, dur); err != nil {
				t.Fatalf("Ramp: %v", err)
			}
			ceiling = math.Max(ceiling, math.Min(math.Max(target, 0), 1))

			for range 10 {
				q := now + rng.Float64()*0.5
				v := p.Value(q)
				if v < -eps || v > ceiling+eps {
					t.Fatalf("trial %d: Value(%v) = %v outside [0, %v]", trial, q, v, ceiling)
				}
			}
		}
	}
}

func TestValue_ConcurrentWithSchedule(t *testing.T) {
	t.Parallel()

	p := envelope.NewParam(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 10000 {
			v := p.Value(float64(i) * 1e-4)
			if v < 0 || v > 1 {
				t.Errorf("Value out of range: %v", v)
				return
			}
		}
	}()
	for i := range 1000 {
		_ = p.Ramp(float64(i)*1e-3, float64(i%2), 0.01)
	}
	<-done
}
