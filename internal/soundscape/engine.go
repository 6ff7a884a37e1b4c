// Package soundscape implements the ambient soundscape engine: three
// concurrent voices (wind, rain and birds) with independent mix levels and
// randomized bird chirps.
//
// The engine is a two-state machine, Stopped and Playing. All public
// operations are serialized through a single mutex so the three voices are
// always created, started and released together. Teardown follows the
// release ramp on the playback clock: voices are handed to the mixer with a
// removal time equal to the ramp's end.
package soundscape

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/audio/mixer"
)

// DefaultRamp is the attack and release duration.
const DefaultRamp = 100 * time.Millisecond

// DefaultVolume is the initial mix level for every category.
const DefaultVolume = 0.5

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("soundscape: engine closed")

// State is the soundscape playback state.
type State int

const (
	Stopped State = iota
	Playing
)

// String returns the lower-case state name.
func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Option configures an [Engine] during construction.
type Option func(*Engine)

// WithMixer replaces the default [mixer.VoiceMixer]. The engine attaches the
// mixer to its backend but never closes a mixer it did not create.
func WithMixer(m audio.Mixer) Option {
	return func(e *Engine) { e.mixer = m }
}

// WithVoices replaces the voice table. Categories missing from voices keep
// their built-in definition.
func WithVoices(voices map[voice.Category]voice.Config) Option {
	return func(e *Engine) { maps.Copy(e.configs, voices) }
}

// WithVolumes sets the initial mix levels. Levels are clamped to [0, 1].
func WithVolumes(volumes map[voice.Category]float64) Option {
	return func(e *Engine) {
		for c, v := range volumes {
			e.volumes[c] = clamp(v)
		}
	}
}

// WithRamp sets the attack and release duration.
func WithRamp(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.ramp = d
		}
	}
}

// WithChirp sets the chirp tuning.
func WithChirp(c ChirpConfig) Option {
	return func(e *Engine) { e.chirp = c }
}

// WithScheduler injects the chirp scheduler, typically one built with
// [NewSeededScheduler] for reproducible chirps.
func WithScheduler(s *Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithTimer replaces the function used to wait between chirps. Tests use it
// to fire chirps on demand.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(e *Engine) { e.after = after }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the soundscape controller. It is safe for concurrent use.
type Engine struct {
	backend audio.Backend
	mixer   audio.Mixer
	owned   *mixer.VoiceMixer // non-nil when the engine created the mixer
	detach  func()
	metrics *observe.Metrics

	configs map[voice.Category]voice.Config
	ramp    time.Duration
	chirp   ChirpConfig
	sched   *Scheduler
	after   func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	state   State
	volumes map[voice.Category]float64
	voices  map[voice.Category]*voice.Voice
	fading  map[voice.Category]*voice.Voice // released, awaiting removal
	gen     uint64 // incremented on every play; guards stale chirps
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates a stopped soundscape engine that renders through backend. A nil
// backend is accepted; every Play then reports [audio.ErrEngineUnavailable].
func New(backend audio.Backend, opts ...Option) (*Engine, error) {
	e := &Engine{
		backend: backend,
		configs: voice.Defaults(),
		ramp:    DefaultRamp,
		chirp:   DefaultChirp,
		after:   time.After,
		volumes: make(map[voice.Category]float64, 3),
		voices:  make(map[voice.Category]*voice.Voice, 3),
		fading:  make(map[voice.Category]*voice.Voice, 3),
	}
	for _, c := range voice.Categories() {
		e.volumes[c] = DefaultVolume
	}
	for _, o := range opts {
		o(e)
	}
	if e.mixer == nil {
		e.owned = mixer.New(mixer.WithCapacity(len(e.configs) * 2))
		e.mixer = e.owned
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.sched == nil {
		e.sched = NewScheduler(e.chirp.MeanInterval, nil)
	}

	for c, cfg := range e.configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("soundscape: voice %s: %w", c, err)
		}
	}
	if e.chirp.MeanInterval <= 0 || e.chirp.SpreadHz < 0 || e.chirp.Pulse < 0 {
		return nil, fmt.Errorf("soundscape: invalid chirp config %+v", e.chirp)
	}

	if backend != nil {
		e.detach = backend.Attach(e.mixer)
	}
	return e, nil
}

// Play builds fresh wind, rain and birds voices, fades each in to its mix
// level and starts the chirp timer. A voice of the same category still
// fading out from the previous stop is cut first. Playing an already playing
// soundscape is a no-op.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state == Playing {
		return nil
	}
	if e.backend == nil || !e.backend.Ready() {
		e.metrics.RecordUnavailable(ctx, observe.EngineSoundscape, "play")
		return fmt.Errorf("soundscape: play: %w", audio.ErrEngineUnavailable)
	}

	// Build every voice before any of them sounds.
	sr := e.backend.SampleRate()
	built := make(map[voice.Category]*voice.Voice, len(e.configs))
	for _, c := range voice.Categories() {
		cfg, ok := e.configs[c]
		if !ok {
			continue
		}
		v, err := voice.New(cfg, sr, 0)
		if err != nil {
			return fmt.Errorf("soundscape: build %s: %w", c, err)
		}
		built[c] = v
	}

	now := e.backend.Now()
	chirps := false
	for _, c := range voice.Categories() {
		v, ok := built[c]
		if !ok {
			continue
		}
		if old, ok := e.fading[c]; ok {
			e.mixer.Remove(old)
			delete(e.fading, c)
		}
		if _, err := v.Ramp(now, e.volumes[c], e.ramp.Seconds()); err != nil {
			return fmt.Errorf("soundscape: attack %s: %w", c, err)
		}
		e.mixer.Add(v)
		chirps = chirps || v.Config().Chirp
	}

	e.voices = built
	e.state = Playing
	e.gen++

	if chirps {
		loopCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.wg.Add(1)
		go e.chirpLoop(loopCtx, e.gen)
	}

	e.metrics.AddActiveVoices(ctx, observe.EngineSoundscape, int64(len(built)))
	e.metrics.RecordTransition(ctx, observe.EngineSoundscape, Playing.String())
	observe.Logger(ctx).Info("soundscape playing", "voices", len(built), "at", now)
	return nil
}

// Stop fades every voice out, schedules its removal for the end of the fade
// and cancels the chirp timer. Stopping a stopped soundscape is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(ctx)
}

func (e *Engine) stopLocked(ctx context.Context) error {
	if e.state == Stopped {
		return nil
	}

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	now := e.backend.Now()
	for c, v := range e.voices {
		end, err := v.Ramp(now, 0, e.ramp.Seconds())
		if err != nil || e.ramp == 0 {
			e.mixer.Remove(v)
			if err != nil {
				observe.Logger(ctx).Warn("soundscape: release failed, removing voice", "category", c, "err", err)
			}
			continue
		}
		e.mixer.RemoveAt(v, end)
		e.fading[c] = v
	}

	n := len(e.voices)
	e.voices = make(map[voice.Category]*voice.Voice, 3)
	e.state = Stopped

	e.metrics.AddActiveVoices(ctx, observe.EngineSoundscape, -int64(n))
	e.metrics.RecordTransition(ctx, observe.EngineSoundscape, Stopped.String())
	observe.Logger(ctx).Info("soundscape stopped", "released", n, "at", now)
	return nil
}

// SetVolume stores the mix level for category, clamped to [0, 1], and applies
// it directly to the live voice if the soundscape is playing. It returns the
// level actually stored.
func (e *Engine) SetVolume(ctx context.Context, category voice.Category, level float64) (float64, error) {
	category, err := voice.ParseCategory(string(category))
	if err != nil {
		return 0, fmt.Errorf("soundscape: %w", err)
	}
	level = clamp(level)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.volumes[category] = level
	if v, ok := e.voices[category]; ok {
		v.SetGain(e.backend.Now(), level)
	}

	e.metrics.RecordVolumeChange(ctx, string(category))
	observe.Logger(ctx).Debug("soundscape volume set", "category", category, "level", level)
	return level, nil
}

// IsPlaying reports whether the soundscape is playing.
func (e *Engine) IsPlaying() bool {
	return e.State() == Playing
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Volumes returns a copy of the mix levels.
func (e *Engine) Volumes() map[voice.Category]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.volumes)
}

// Voices returns the live voices keyed by category. It is empty while
// stopped.
func (e *Engine) Voices() map[voice.Category]*voice.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.voices)
}

// Close stops playback, detaches from the backend and waits for the chirp
// timer to exit. Close is a hard stop: once detached, voices still in their
// release ramp are no longer rendered and the mixer the engine created is
// closed. Call [Engine.Stop] and let the ramp finish first for a click-free
// end. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	err := e.stopLocked(context.Background())
	if e.detach != nil {
		e.detach()
	}
	if e.owned != nil {
		_ = e.owned.Close()
	}
	clear(e.fading)
	e.mu.Unlock()

	e.wg.Wait()
	return err
}

// chirpLoop fires chirps at exponentially distributed intervals until ctx is
// cancelled or the engine moves on to another generation.
func (e *Engine) chirpLoop(ctx context.Context, gen uint64) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		wait := e.sched.Next()
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-e.after(wait):
		}

		if !e.fireChirp(ctx, gen) {
			return
		}
	}
}

// fireChirp retunes every chirping voice and pulses its gain from the mix
// level down to silence. It reports false once gen is stale.
func (e *Engine) fireChirp(ctx context.Context, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen || e.state != Playing || ctx.Err() != nil {
		return false
	}

	now := e.backend.Now()
	for _, c := range voice.Categories() {
		v, ok := e.voices[c]
		if !ok || !v.Config().Chirp {
			continue
		}
		freq := v.Config().BaseFrequency + e.sched.Offset(e.chirp.SpreadHz)
		if err := v.SetFrequency(freq); err != nil {
			observe.Logger(ctx).Warn("soundscape: chirp retune failed", "category", c, "err", err)
			continue
		}
		v.SetGain(now, e.volumes[c])
		if _, err := v.Ramp(now, 0, e.chirp.Pulse.Seconds()); err != nil {
			observe.Logger(ctx).Warn("soundscape: chirp pulse failed", "category", c, "err", err)
		}
		e.metrics.RecordChirp(ctx)
		observe.Logger(ctx).Debug("chirp", "category", c, "frequency", freq, "at", now)
	}
	return true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
