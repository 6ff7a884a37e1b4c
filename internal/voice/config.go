package voice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/ambisynth/pkg/dsp"
	"github.com/MrWong99/ambisynth/pkg/dsp/filter"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// SourceKind selects the generator a voice is built on.
type SourceKind int

const (
	// Noise loops a pre-computed buffer of uniform white noise.
	Noise SourceKind = iota

	// Oscillator is a periodic waveform at a settable frequency.
	Oscillator
)

// String returns the lower-case name of the source kind.
func (k SourceKind) String() string {
	switch k {
	case Noise:
		return "noise"
	case Oscillator:
		return "oscillator"
	default:
		return "unknown"
	}
}

// ParseSourceKind converts a case-insensitive name into a [SourceKind].
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noise":
		return Noise, nil
	case "oscillator", "osc":
		return Oscillator, nil
	}
	return 0, fmt.Errorf("voice: unknown source kind %q: %w", s, dsp.ErrInvalidParameter)
}

// FilterConfig describes the biquad placed after the source.
type FilterConfig struct {
	Kind     filter.Kind
	CutoffHz float64
	Q        float64
}

// Config describes how to build a [Voice]. It is immutable once a voice has
// been created from it.
type Config struct {
	// Source selects noise or an oscillator.
	Source SourceKind

	// Waveform is the oscillator shape. Ignored for noise.
	Waveform source.Waveform

	// BaseFrequency is the oscillator frequency in Hz. Ignored for noise.
	BaseFrequency float64

	// NoiseDuration is the length in seconds of the looped noise buffer.
	// Ignored for oscillators.
	NoiseDuration float64

	// Filter, when non-nil, shapes the source with a biquad.
	Filter *FilterConfig

	// Chirp enables randomized pitch and amplitude pulses. Only meaningful
	// for oscillator voices.
	Chirp bool
}

// Validate checks cfg and returns every problem joined together.
func (cfg Config) Validate() error {
	var errs []error
	switch cfg.Source {
	case Noise:
		if cfg.NoiseDuration <= 0 {
			errs = append(errs, fmt.Errorf("noise duration must be > 0, got %v", cfg.NoiseDuration))
		}
		if cfg.Chirp {
			errs = append(errs, errors.New("chirp requires an oscillator source"))
		}
	case Oscillator:
		if !cfg.Waveform.IsValid() {
			errs = append(errs, fmt.Errorf("invalid waveform %d", int(cfg.Waveform)))
		}
		if cfg.BaseFrequency <= 0 {
			errs = append(errs, fmt.Errorf("base frequency must be > 0, got %v", cfg.BaseFrequency))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid source kind %d", int(cfg.Source)))
	}
	if f := cfg.Filter; f != nil {
		if f.CutoffHz <= 0 {
			errs = append(errs, fmt.Errorf("filter cutoff must be > 0, got %v", f.CutoffHz))
		}
		if f.Q <= 0 {
			errs = append(errs, fmt.Errorf("filter q must be > 0, got %v", f.Q))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("voice: %w: %w", dsp.ErrInvalidParameter, errors.Join(errs...))
}

// Category names one of the ambient soundscape voices.
type Category string

const (
	Wind  Category = "wind"
	Rain  Category = "rain"
	Birds Category = "birds"
)

// Categories returns the ambient categories in start order.
func Categories() []Category {
	return []Category{Wind, Rain, Birds}
}

// ParseCategory converts a case-insensitive name into a [Category].
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Wind, Rain, Birds:
		return c, nil
	}
	return "", fmt.Errorf("voice: unknown category %q: %w", s, dsp.ErrInvalidParameter)
}

// Defaults returns the built-in configuration for every ambient category.
func Defaults() map[Category]Config {
	return map[Category]Config{
		Wind: {
			Source:        Noise,
			NoiseDuration: 2,
			Filter:        &FilterConfig{Kind: filter.Lowpass, CutoffHz: 400, Q: 0.9},
		},
		Rain: {
			Source:        Noise,
			NoiseDuration: 1,
			Filter:        &FilterConfig{Kind: filter.Bandpass, CutoffHz: 2000, Q: 0.2},
		},
		Birds: {
			Source:        Oscillator,
			Waveform:      source.Sine,
			BaseFrequency: 440,
			Chirp:         true,
		},
	}
}
