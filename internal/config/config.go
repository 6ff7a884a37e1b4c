// Package config provides the configuration schema, loader, hot-reload watcher
// and audio backend registry for the ambisynth server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the ambisynth server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BackendName selects the audio output implementation.
type BackendName string

const (
	// BackendDevice plays through the system sound device.
	BackendDevice BackendName = "device"

	// BackendHeadless renders at wall-clock pace without a device.
	BackendHeadless BackendName = "headless"

	// BackendSpeaker plays through the beep speaker.
	BackendSpeaker BackendName = "speaker"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultSampleRate    = 48000
	DefaultBufferSize    = 40 * time.Millisecond
	DefaultVolume        = 0.5
	DefaultRamp          = 100 * time.Millisecond
	DefaultChirpInterval = 5 * time.Second
	DefaultChirpSpreadHz = 200.0
	DefaultChirpPulse    = 100 * time.Millisecond
	DefaultSustainLevel  = 0.5
	DefaultWaveform      = "sine"
)

// Config is the root configuration structure for ambisynth.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Soundscape SoundscapeConfig `yaml:"soundscape"`
	Synth      SynthConfig      `yaml:"synth"`
}

// ServerConfig holds network and logging settings for the control server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig selects and tunes the audio backend. Changes require a restart.
type AudioConfig struct {
	// Backend names a factory registered in the [Registry]. Default: "device".
	Backend BackendName `yaml:"backend"`

	// SampleRate is the output sample rate in Hz. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// BufferSize is the device buffer duration. Default: 40ms.
	BufferSize time.Duration `yaml:"buffer_size"`

	// Format is the device sample encoding: "float32" (default) or "int16".
	Format string `yaml:"format"`

	// FallbackHeadless makes the server keep running on the headless backend
	// when the device cannot be opened, instead of running with no audio.
	FallbackHeadless bool `yaml:"fallback_headless"`
}

// SoundscapeConfig configures the ambient soundscape engine.
type SoundscapeConfig struct {
	// Volumes holds the initial mix level per category (wind, rain, birds).
	// Missing categories default to 0.5. Hot-reloadable.
	Volumes map[string]float64 `yaml:"volumes"`

	// Ramp is the attack and release duration. Default: 100ms.
	Ramp time.Duration `yaml:"ramp"`

	// Chirp tunes the randomized bird chirps.
	Chirp ChirpConfig `yaml:"chirp"`

	// Voices overrides the built-in voice definition per category. An entry
	// replaces the default for that category entirely.
	Voices map[string]VoiceEntry `yaml:"voices"`
}

// ChirpConfig tunes the chirp scheduler.
type ChirpConfig struct {
	// MeanInterval is the mean time between chirps. Default: 5s.
	MeanInterval time.Duration `yaml:"mean_interval"`

	// SpreadHz is the width of the uniform frequency jump above the base
	// frequency. Default: 200. An explicit 0 keeps chirps at the base pitch.
	SpreadHz *float64 `yaml:"spread_hz"`

	// Pulse is the decay time of each chirp's amplitude pulse. Default: 100ms.
	Pulse time.Duration `yaml:"pulse"`

	// Seed makes chirp timing reproducible. Zero picks a random seed.
	Seed uint64 `yaml:"seed"`
}

// VoiceEntry is the YAML form of a voice definition.
type VoiceEntry struct {
	// Source is "noise" or "oscillator".
	Source string `yaml:"source"`

	// Waveform is the oscillator shape (sine, square, sawtooth, triangle).
	Waveform string `yaml:"waveform"`

	// BaseFrequency is the oscillator frequency in Hz.
	BaseFrequency float64 `yaml:"base_frequency"`

	// NoiseDuration is the length of the looped noise buffer.
	NoiseDuration time.Duration `yaml:"noise_duration"`

	// Filter is an optional biquad after the source.
	Filter *FilterEntry `yaml:"filter"`

	// Chirp enables randomized chirps on an oscillator voice.
	Chirp bool `yaml:"chirp"`
}

// FilterEntry is the YAML form of a biquad definition.
type FilterEntry struct {
	// Kind is "lowpass" or "bandpass".
	Kind string `yaml:"kind"`

	// CutoffHz is the cutoff (lowpass) or centre (bandpass) frequency.
	CutoffHz float64 `yaml:"cutoff_hz"`

	// Q is the resonance. Higher values narrow the band.
	Q float64 `yaml:"q"`
}

// SynthConfig configures the monophonic synthesizer.
type SynthConfig struct {
	// Waveform is the initial waveform. Hot-reloadable. Default: sine.
	Waveform string `yaml:"waveform"`

	// SustainLevel is the gain a note holds after its attack. Default: 0.5.
	// An explicit 0 is honoured and mutes the synth.
	SustainLevel *float64 `yaml:"sustain_level"`

	// Attack is the note-on ramp duration. Default: 100ms.
	Attack time.Duration `yaml:"attack"`

	// Release is the note-off ramp duration. Default: 100ms.
	Release time.Duration `yaml:"release"`
}

// Spread returns SpreadHz, or [DefaultChirpSpreadHz] when unset.
func (c ChirpConfig) Spread() float64 {
	if c.SpreadHz == nil {
		return DefaultChirpSpreadHz
	}
	return *c.SpreadHz
}

// Sustain returns SustainLevel, or [DefaultSustainLevel] when unset.
func (s SynthConfig) Sustain() float64 {
	if s.SustainLevel == nil {
		return DefaultSustainLevel
	}
	return *s.SustainLevel
}
