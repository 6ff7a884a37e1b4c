package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes carry their new value; everything else is reported
// in RestartRequired so the caller can warn about it.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VolumeChanges maps category name to its new level, for every category
	// whose level differs.
	VolumeChanges map[string]float64

	WaveformChanged bool
	NewWaveform     string

	// RestartRequired lists the config sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.VolumeChanges) == 0 && !d.WaveformChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Mix levels, including categories that disappeared from one side.
	for name, level := range new.Soundscape.Volumes {
		if prev, ok := old.Soundscape.Volumes[name]; !ok || prev != level {
			if d.VolumeChanges == nil {
				d.VolumeChanges = make(map[string]float64)
			}
			d.VolumeChanges[name] = level
		}
	}

	// Synth waveform
	if old.Synth.Waveform != new.Synth.Waveform {
		d.WaveformChanged = true
		d.NewWaveform = new.Synth.Waveform
	}

	// Startup-only sections.
	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Soundscape.Ramp != new.Soundscape.Ramp || !chirpEqual(old.Soundscape.Chirp, new.Soundscape.Chirp) {
		d.RestartRequired = append(d.RestartRequired, "soundscape.ramp/chirp")
	}
	if !maps.EqualFunc(old.Soundscape.Voices, new.Soundscape.Voices, voiceEntryEqual) {
		d.RestartRequired = append(d.RestartRequired, "soundscape.voices")
	}
	if old.Synth.Sustain() != new.Synth.Sustain() || old.Synth.Attack != new.Synth.Attack || old.Synth.Release != new.Synth.Release {
		d.RestartRequired = append(d.RestartRequired, "synth.envelope")
	}

	return d
}

// chirpEqual compares chirp settings by value, with an unset spread equal to
// the default.
func chirpEqual(a, b ChirpConfig) bool {
	return a.MeanInterval == b.MeanInterval && a.Spread() == b.Spread() &&
		a.Pulse == b.Pulse && a.Seed == b.Seed
}

// voiceEntryEqual compares two voice entries, including their filters.
func voiceEntryEqual(a, b VoiceEntry) bool {
	if (a.Filter == nil) != (b.Filter == nil) {
		return false
	}
	if a.Filter != nil && *a.Filter != *b.Filter {
		return false
	}
	a.Filter, b.Filter = nil, nil
	return a == b
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
