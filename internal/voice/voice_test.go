package voice_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/dsp"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

const sampleRate = 8000

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()

	defaults := voice.Defaults()
	for _, c := range voice.Categories() {
		cfg, ok := defaults[c]
		if !ok {
			t.Fatalf("no default for %s", c)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate: %v", c, err)
		}
	}
	if !defaults[voice.Birds].Chirp {
		t.Error("birds default should chirp")
	}
	if defaults[voice.Wind].Filter == nil || defaults[voice.Wind].Filter.CutoffHz != 400 {
		t.Errorf("wind filter = %+v, want lowpass 400 Hz", defaults[voice.Wind].Filter)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  voice.Config
	}{
		{"noise without duration", voice.Config{Source: voice.Noise}},
		{"noise with chirp", voice.Config{Source: voice.Noise, NoiseDuration: 1, Chirp: true}},
		{"oscillator zero frequency", voice.Config{Source: voice.Oscillator, Waveform: source.Sine}},
		{"oscillator bad waveform", voice.Config{Source: voice.Oscillator, Waveform: 42, BaseFrequency: 440}},
		{"filter zero q", voice.Config{Source: voice.Noise, NoiseDuration: 1, Filter: &voice.FilterConfig{CutoffHz: 100}}},
		{"bad source", voice.Config{Source: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if !errors.Is(err, dsp.ErrInvalidParameter) {
				t.Errorf("Validate() = %v, want ErrInvalidParameter", err)
			}
			if _, err := voice.New(tt.cfg, sampleRate, 0); err == nil {
				t.Error("New accepted an invalid config")
			}
		})
	}
}

func TestNew_FilterBeyondNyquist(t *testing.T) {
	t.Parallel()

	cfg := voice.Defaults()[voice.Rain]
	// 2000 Hz is above Nyquist at 3 kHz.
	if _, err := voice.New(cfg, 3000, 0); !errors.Is(err, dsp.ErrInvalidParameter) {
		t.Errorf("New() err = %v, want ErrInvalidParameter", err)
	}
}

func TestSample_AppliesGainEnvelope(t *testing.T) {
	t.Parallel()

	v, err := voice.New(voice.Config{
		Source:        voice.Oscillator,
		Waveform:      source.Square,
		BaseFrequency: 100,
	}, sampleRate, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s := v.Sample(0); s != 0 {
		t.Errorf("Sample at zero gain = %v, want 0", s)
	}
	end, err := v.Ramp(0, 0.5, 0.1)
	if err != nil {
		t.Fatalf("Ramp: %v", err)
	}
	if end != 0.1 {
		t.Errorf("ramp end = %v, want 0.1", end)
	}
	if g := v.Gain(0.05); math.Abs(g-0.25) > 1e-12 {
		t.Errorf("Gain(0.05) = %v, want 0.25", g)
	}
	if s := math.Abs(v.Sample(0.2)); s != 0.5 {
		t.Errorf("|Sample| after attack = %v, want 0.5", s)
	}

	v.Stop()
	if !v.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
	if s := v.Sample(0.3); s != 0 {
		t.Errorf("Sample after Stop = %v, want 0", s)
	}
}

func TestSample_NoiseStaysBounded(t *testing.T) {
	t.Parallel()

	for _, c := range voice.Categories() {
		v, err := voice.New(voice.Defaults()[c], sampleRate, 1)
		if err != nil {
			t.Fatalf("%s: New: %v", c, err)
		}
		for i := range sampleRate {
			s := v.Sample(float64(i) / sampleRate)
			if math.IsNaN(s) || math.Abs(s) > 4 {
				t.Fatalf("%s: sample %d = %v out of range", c, i, s)
			}
		}
	}
}

func TestSetFrequency(t *testing.T) {
	t.Parallel()

	birds, err := voice.New(voice.Defaults()[voice.Birds], sampleRate, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := birds.SetFrequency(550); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if f := birds.Frequency(); f != 550 {
		t.Errorf("Frequency() = %v, want 550", f)
	}
	if err := birds.SetFrequency(-1); !errors.Is(err, dsp.ErrInvalidParameter) {
		t.Errorf("SetFrequency(-1) err = %v, want ErrInvalidParameter", err)
	}

	wind, err := voice.New(voice.Defaults()[voice.Wind], sampleRate, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := wind.SetFrequency(100); !errors.Is(err, voice.ErrNotOscillator) {
		t.Errorf("SetFrequency on noise err = %v, want ErrNotOscillator", err)
	}
	if f := wind.Frequency(); f != 0 {
		t.Errorf("noise Frequency() = %v, want 0", f)
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	if c, err := voice.ParseCategory(" Wind "); err != nil || c != voice.Wind {
		t.Errorf("ParseCategory(Wind) = %q, %v", c, err)
	}
	if _, err := voice.ParseCategory("thunder"); err == nil {
		t.Error("ParseCategory(thunder) succeeded")
	}
	if k, err := voice.ParseSourceKind("osc"); err != nil || k != voice.Oscillator {
		t.Errorf("ParseSourceKind(osc) = %v, %v", k, err)
	}
}
