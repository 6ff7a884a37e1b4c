package source_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

var allWaveforms = []source.Waveform{source.Sine, source.Square, source.Sawtooth, source.Triangle}

func TestNoiseBuffer_LengthAndBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sampleRate int
		duration   float64
		want       int
	}{
		{44100, 1, 44100},
		{44100, 2, 88200},
		{48000, 0.5, 24000},
		{8000, 0.25, 2000},
	}
	for _, tc := range tests {
		buf, err := source.NoiseBuffer(tc.sampleRate, tc.duration)
		if err != nil {
			t.Fatalf("NoiseBuffer(%d, %v): %v", tc.sampleRate, tc.duration, err)
		}
		if len(buf) != tc.want {
			t.Errorf("NoiseBuffer(%d, %v) len = %d, want %d", tc.sampleRate, tc.duration, len(buf), tc.want)
		}
		for i, s := range buf {
			if s < -1 || s > 1 {
				t.Fatalf("sample %d = %v out of [-1, 1]", i, s)
			}
		}
	}
}

func TestNoiseBuffer_NotConstant(t *testing.T) {
	t.Parallel()

	buf, err := source.NoiseBuffer(8000, 1)
	if err != nil {
		t.Fatalf("NoiseBuffer: %v", err)
	}
	var pos, neg int
	for _, s := range buf {
		if s > 0 {
			pos++
		} else if s < 0 {
			neg++
		}
	}
	if pos < 1000 || neg < 1000 {
		t.Errorf("noise looks biased: %d positive, %d negative of %d", pos, neg, len(buf))
	}
}

func TestNoiseBuffer_InvalidParameter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sampleRate int
		duration   float64
	}{
		{"zero duration", 44100, 0},
		{"negative duration", 44100, -1},
		{"nan duration", 44100, math.NaN()},
		{"zero sample rate", 0, 1},
		{"negative sample rate", -44100, 1},
		{"rounds to empty", 10, 0.01},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf, err := source.NoiseBuffer(tc.sampleRate, tc.duration)
			if !errors.Is(err, source.ErrInvalidParameter) {
				t.Fatalf("err = %v, want ErrInvalidParameter", err)
			}
			if buf != nil {
				t.Errorf("buffer allocated on invalid input: len %d", len(buf))
			}
		})
	}
}

func TestPeriodic_BoundedAndPeriodic(t *testing.T) {
	t.Parallel()

	freqs := []float64{1, 261.63, 440, 1000.5}
	for _, w := range allWaveforms {
		for _, f := range freqs {
			period := 1 / f
			for i := 1; i < 200; i++ {
				ti := float64(i) * period / 37.3
				a, err := source.Periodic(w, f, ti)
				if err != nil {
					t.Fatalf("Periodic(%s, %v, %v): %v", w, f, ti, err)
				}
				if a < -1 || a > 1 {
					t.Fatalf("Periodic(%s, %v, %v) = %v out of range", w, f, ti, a)
				}
				b, _ := source.Periodic(w, f, ti+3*period)
				// Square has a jump discontinuity; skip samples sitting on an edge.
				if math.Abs(a-b) > 1e-6 && !(w == source.Square && math.Abs(a-b) == 2) {
					t.Fatalf("%s at %v Hz not periodic: f(%v)=%v, f(t+3T)=%v", w, f, ti, a, b)
				}
			}
		}
	}
}

func TestPeriodic_Shapes(t *testing.T) {
	t.Parallel()

	const f = 1.0
	tests := []struct {
		w    source.Waveform
		t    float64
		want float64
	}{
		{source.Sine, 0, 0},
		{source.Sine, 0.25, 1},
		{source.Sine, 0.75, -1},
		{source.Square, 0.1, 1},
		{source.Square, 0.49, 1},
		{source.Square, 0.5, -1},
		{source.Square, 0.9, -1},
		{source.Sawtooth, 0, -1},
		{source.Sawtooth, 0.5, 0},
		{source.Sawtooth, 0.75, 0.5},
		{source.Triangle, 0, -1},
		{source.Triangle, 0.25, 0},
		{source.Triangle, 0.5, 1},
		{source.Triangle, 0.75, 0},
	}
	for _, tc := range tests {
		got, err := source.Periodic(tc.w, f, tc.t)
		if err != nil {
			t.Fatalf("Periodic: %v", err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Periodic(%s, 1, %v) = %v, want %v", tc.w, tc.t, got, tc.want)
		}
	}
}

func TestPeriodic_SquareDutyCycle(t *testing.T) {
	t.Parallel()

	const n = 10000
	var high int
	for i := range n {
		v, _ := source.Periodic(source.Square, 1, (float64(i)+0.5)/n)
		if v == 1 {
			high++
		}
	}
	if high != n/2 {
		t.Errorf("square high for %d of %d samples, want %d", high, n, n/2)
	}
}

func TestPeriodic_InvalidParameter(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{0, -440, math.NaN(), math.Inf(1)} {
		if _, err := source.Periodic(source.Sine, f, 0); !errors.Is(err, source.ErrInvalidParameter) {
			t.Errorf("Periodic(freq=%v) err = %v, want ErrInvalidParameter", f, err)
		}
	}
	if _, err := source.Periodic(source.Waveform(42), 440, 0); !errors.Is(err, source.ErrInvalidParameter) {
		t.Errorf("Periodic(bad waveform) err = %v, want ErrInvalidParameter", err)
	}
}

func TestParseWaveform(t *testing.T) {
	t.Parallel()

	for _, w := range allWaveforms {
		got, err := source.ParseWaveform(w.String())
		if err != nil || got != w {
			t.Errorf("ParseWaveform(%q) = %v, %v", w.String(), got, err)
		}
	}
	if got, err := source.ParseWaveform(" Square "); err != nil || got != source.Square {
		t.Errorf("ParseWaveform mixed case = %v, %v", got, err)
	}
	if _, err := source.ParseWaveform("noise"); !errors.Is(err, source.ErrInvalidParameter) {
		t.Errorf("ParseWaveform(noise) err = %v", err)
	}
}

func TestOscillator_MatchesPeriodic(t *testing.T) {
	t.Parallel()

	const sr = 48000
	for _, w := range []source.Waveform{source.Sine, source.Sawtooth, source.Triangle} {
		osc, err := source.NewOscillator(w, sr, 440)
		if err != nil {
			t.Fatalf("NewOscillator: %v", err)
		}
		for i := range 1000 {
			got := osc.Next()
			want, _ := source.Periodic(w, 440, float64(i)/sr)
			if math.Abs(got-want) > 1e-6 {
				t.Fatalf("%s sample %d = %v, want %v", w, i, got, want)
			}
		}
	}
}

func TestOscillator_SetFrequency(t *testing.T) {
	t.Parallel()

	osc, err := source.NewOscillator(source.Sine, 44100, 440)
	if err != nil {
		t.Fatalf("NewOscillator: %v", err)
	}
	if err := osc.SetFrequency(0); !errors.Is(err, source.ErrInvalidParameter) {
		t.Errorf("SetFrequency(0) err = %v", err)
	}
	if osc.Frequency() != 440 {
		t.Errorf("frequency changed by rejected update: %v", osc.Frequency())
	}
	if err := osc.SetFrequency(612.5); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if osc.Frequency() != 612.5 {
		t.Errorf("Frequency() = %v, want 612.5", osc.Frequency())
	}
}

func TestNoiseLoop_Wraps(t *testing.T) {
	t.Parallel()

	loop, err := source.NewNoiseLoop(100, 0.1)
	if err != nil {
		t.Fatalf("NewNoiseLoop: %v", err)
	}
	if loop.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", loop.Len())
	}
	first := make([]float64, loop.Len())
	for i := range first {
		first[i] = loop.Next()
	}
	for i := range first {
		if got := loop.Next(); got != first[i] {
			t.Fatalf("second pass sample %d = %v, want %v", i, got, first[i])
		}
	}
}
