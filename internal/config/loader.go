package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/dsp/filter"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a fully defaulted config, as used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = BackendDevice
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.BufferSize == 0 {
		cfg.Audio.BufferSize = DefaultBufferSize
	}

	sc := &cfg.Soundscape
	if sc.Volumes == nil {
		sc.Volumes = make(map[string]float64, 3)
	}
	for _, c := range voice.Categories() {
		if _, ok := sc.Volumes[string(c)]; !ok {
			sc.Volumes[string(c)] = DefaultVolume
		}
	}
	if sc.Ramp == 0 {
		sc.Ramp = DefaultRamp
	}
	if sc.Chirp.MeanInterval == 0 {
		sc.Chirp.MeanInterval = DefaultChirpInterval
	}
	if sc.Chirp.SpreadHz == nil {
		spread := DefaultChirpSpreadHz
		sc.Chirp.SpreadHz = &spread
	}
	if sc.Chirp.Pulse == 0 {
		sc.Chirp.Pulse = DefaultChirpPulse
	}

	if cfg.Synth.Waveform == "" {
		cfg.Synth.Waveform = DefaultWaveform
	}
	if cfg.Synth.SustainLevel == nil {
		sustain := DefaultSustainLevel
		cfg.Synth.SustainLevel = &sustain
	}
	if cfg.Synth.Attack == 0 {
		cfg.Synth.Attack = DefaultRamp
	}
	if cfg.Synth.Release == 0 {
		cfg.Synth.Release = DefaultRamp
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate > 0 && (cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size %v must not be negative", cfg.Audio.BufferSize))
	}
	if _, err := audio.ParseSampleFormat(cfg.Audio.Format); err != nil {
		errs = append(errs, fmt.Errorf("audio.format: %w", err))
	}
	if cfg.Audio.Backend != "" && !slices.Contains(KnownBackends(), cfg.Audio.Backend) {
		slog.Warn("unknown audio backend, it must be registered before startup",
			"backend", cfg.Audio.Backend,
			"known", KnownBackends(),
		)
	}

	// Soundscape
	sc := cfg.Soundscape
	for name, level := range sc.Volumes {
		if _, err := voice.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("soundscape.volumes: unknown category %q; valid values: wind, rain, birds", name))
			continue
		}
		if level < 0 || level > 1 {
			errs = append(errs, fmt.Errorf("soundscape.volumes.%s %.2f is out of range [0, 1]", name, level))
		}
	}
	if sc.Ramp < 0 {
		errs = append(errs, fmt.Errorf("soundscape.ramp %v must not be negative", sc.Ramp))
	}
	if sc.Chirp.MeanInterval < 0 {
		errs = append(errs, fmt.Errorf("soundscape.chirp.mean_interval %v must not be negative", sc.Chirp.MeanInterval))
	}
	if spread := sc.Chirp.Spread(); spread < 0 {
		errs = append(errs, fmt.Errorf("soundscape.chirp.spread_hz %.2f must not be negative", spread))
	}
	if sc.Chirp.Pulse < 0 {
		errs = append(errs, fmt.Errorf("soundscape.chirp.pulse %v must not be negative", sc.Chirp.Pulse))
	}
	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	for name, entry := range sc.Voices {
		if _, err := voice.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("soundscape.voices: unknown category %q", name))
			continue
		}
		vc, err := entry.VoiceConfig()
		if err != nil {
			errs = append(errs, fmt.Errorf("soundscape.voices.%s: %w", name, err))
			continue
		}
		if nyquist := float64(sampleRate) / 2; vc.Filter != nil && vc.Filter.CutoffHz >= nyquist {
			errs = append(errs, fmt.Errorf("soundscape.voices.%s.filter.cutoff_hz %.0f must be below %.0f Hz, half of audio.sample_rate %d",
				name, vc.Filter.CutoffHz, nyquist, sampleRate))
		}
	}

	// Synth
	if _, err := source.ParseWaveform(cfg.Synth.Waveform); cfg.Synth.Waveform != "" && err != nil {
		errs = append(errs, fmt.Errorf("synth.waveform %q is invalid; valid values: sine, square, sawtooth, triangle", cfg.Synth.Waveform))
	}
	if sustain := cfg.Synth.Sustain(); sustain < 0 || sustain > 1 {
		errs = append(errs, fmt.Errorf("synth.sustain_level %.2f is out of range [0, 1]", sustain))
	}
	if cfg.Synth.Attack < 0 {
		errs = append(errs, fmt.Errorf("synth.attack %v must not be negative", cfg.Synth.Attack))
	}
	if cfg.Synth.Release < 0 {
		errs = append(errs, fmt.Errorf("synth.release %v must not be negative", cfg.Synth.Release))
	}

	return errors.Join(errs...)
}

// VoiceConfig converts the YAML entry into a validated [voice.Config].
func (e VoiceEntry) VoiceConfig() (voice.Config, error) {
	kind, err := voice.ParseSourceKind(e.Source)
	if err != nil {
		return voice.Config{}, err
	}
	cfg := voice.Config{
		Source:        kind,
		BaseFrequency: e.BaseFrequency,
		NoiseDuration: e.NoiseDuration.Seconds(),
		Chirp:         e.Chirp,
	}
	if kind == voice.Oscillator {
		name := e.Waveform
		if name == "" {
			name = DefaultWaveform
		}
		if cfg.Waveform, err = source.ParseWaveform(name); err != nil {
			return voice.Config{}, err
		}
	}
	if f := e.Filter; f != nil {
		k, err := filter.ParseKind(f.Kind)
		if err != nil {
			return voice.Config{}, err
		}
		cfg.Filter = &voice.FilterConfig{Kind: k, CutoffHz: f.CutoffHz, Q: f.Q}
	}
	if err := cfg.Validate(); err != nil {
		return voice.Config{}, err
	}
	return cfg, nil
}

// VoiceConfigs returns the built-in voice table with any configured
// overrides applied.
func (sc SoundscapeConfig) VoiceConfigs() (map[voice.Category]voice.Config, error) {
	out := voice.Defaults()
	for name, entry := range sc.Voices {
		c, err := voice.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		vc, err := entry.VoiceConfig()
		if err != nil {
			return nil, fmt.Errorf("config: soundscape.voices.%s: %w", name, err)
		}
		out[c] = vc
	}
	return out, nil
}

// CategoryVolumes returns the configured mix levels keyed by category.
// Unknown keys are skipped; [Validate] reports them.
func (sc SoundscapeConfig) CategoryVolumes() map[voice.Category]float64 {
	out := make(map[voice.Category]float64, len(sc.Volumes))
	for name, level := range sc.Volumes {
		if c, err := voice.ParseCategory(name); err == nil {
			out[c] = level
		}
	}
	return out
}
