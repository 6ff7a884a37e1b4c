// Package app wires the ambisynth subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds both engines and the
// control server on top of an audio backend, Run starts the backend and
// serves until the context is cancelled, and Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithListener,
// WithMetrics, ...). A nil backend is accepted: the control surface then
// answers every sound-producing command with 503.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ambisynth/internal/config"
	"github.com/MrWong99/ambisynth/internal/control"
	"github.com/MrWong99/ambisynth/internal/health"
	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/soundscape"
	"github.com/MrWong99/ambisynth/internal/synth"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

// shutdownGrace bounds how long in-flight control requests may run after
// Run's context is cancelled.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	backend audio.Backend
	metrics *observe.Metrics

	scape   *soundscape.Engine
	synth   *synth.Engine
	control *control.Server
	server  *http.Server

	listener   net.Listener
	configPath string
	watchEvery time.Duration
	watcher    *config.Watcher
	level      *slog.LevelVar

	mu  sync.Mutex
	cfg *config.Config

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithListener serves on ln instead of listening on the configured address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithMetrics overrides the metrics used by the engines and the middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets hot reload change the log level of the handler built on
// lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigFile watches path and applies hot-reloadable changes while Run
// is active. interval <= 0 uses [config.DefaultWatchInterval].
func WithConfigFile(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchEvery = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. The backend is owned by the App from here on
// and is closed by Shutdown.
func New(ctx context.Context, cfg *config.Config, backend audio.Backend, opts ...Option) (*App, error) {
	a := &App{backend: backend, cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Soundscape ────────────────────────────────────────────────────
	if err := a.initSoundscape(); err != nil {
		return nil, fmt.Errorf("app: init soundscape: %w", err)
	}

	// ── 2. Synthesizer ───────────────────────────────────────────────────
	if err := a.initSynth(); err != nil {
		return nil, fmt.Errorf("app: init synth: %w", err)
	}

	// ── 3. Control server ────────────────────────────────────────────────
	a.control = control.New(a.scape, a.synth,
		control.WithMetrics(a.metrics),
		control.WithHealth(health.New(health.BackendChecker(backend))),
	)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.control,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.watchEvery > 0 {
			wopts = append(wopts, config.WithInterval(a.watchEvery))
		}
		w, err := config.NewWatcher(a.configPath, func(old, new *config.Config) {
			a.ApplyConfig(ctx, old, new)
		}, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	if backend != nil {
		a.closers = append(a.closers, backend.Close)
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSoundscape() error {
	sc := a.cfg.Soundscape
	voices, err := sc.VoiceConfigs()
	if err != nil {
		return err
	}

	opts := []soundscape.Option{
		soundscape.WithVoices(voices),
		soundscape.WithVolumes(sc.CategoryVolumes()),
		soundscape.WithRamp(sc.Ramp),
		soundscape.WithChirp(soundscape.ChirpConfig{
			MeanInterval: sc.Chirp.MeanInterval,
			SpreadHz:     sc.Chirp.Spread(),
			Pulse:        sc.Chirp.Pulse,
		}),
		soundscape.WithMetrics(a.metrics),
	}
	if sc.Chirp.Seed != 0 {
		opts = append(opts, soundscape.WithScheduler(
			soundscape.NewSeededScheduler(sc.Chirp.MeanInterval, sc.Chirp.Seed)))
		slog.Info("chirps seeded", "seed", sc.Chirp.Seed)
	}

	a.scape, err = soundscape.New(a.backend, opts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.scape.Close)
	return nil
}

func (a *App) initSynth() error {
	sc := a.cfg.Synth
	wf, err := source.ParseWaveform(sc.Waveform)
	if err != nil {
		return err
	}
	a.synth = synth.New(a.backend,
		synth.WithWaveform(wf),
		synth.WithSustain(sc.Sustain()),
		synth.WithAttack(sc.Attack),
		synth.WithRelease(sc.Release),
		synth.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.synth.Close)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Soundscape returns the soundscape engine.
func (a *App) Soundscape() *soundscape.Engine { return a.scape }

// Synth returns the synthesizer engine.
func (a *App) Synth() *synth.Engine { return a.synth }

// Handler returns the control surface.
func (a *App) Handler() http.Handler { return a.control }

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the audio backend, serves the control surface and polls the
// config file until ctx is cancelled. A backend that fails to start is
// logged and left unavailable; the control surface keeps serving.
func (a *App) Run(ctx context.Context) error {
	if a.backend != nil {
		if err := a.backend.Start(); err != nil {
			slog.Error("audio backend failed to start, continuing without sound", "err", err)
		} else {
			slog.Info("audio backend started", "sample_rate", a.backend.SampleRate())
		}
	} else {
		slog.Warn("no audio backend, sound commands will report unavailable")
	}

	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("control server listening", "addr", ln.Addr().String())
		var err error
		if tls := a.Config().Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable difference between old and new:
// log level, soundscape volumes and synth waveform. Other changes are logged
// and take effect on the next restart.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) {
	d := config.Diff(old, new)
	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("config reload: log level changed", "level", d.NewLogLevel)
	}

	for name, level := range d.VolumeChanges {
		c, err := voice.ParseCategory(name)
		if err != nil {
			slog.Warn("config reload: skipping volume", "category", name, "err", err)
			continue
		}
		if _, err := a.scape.SetVolume(ctx, c, level); err != nil {
			slog.Warn("config reload: volume not applied", "category", name, "err", err)
		}
	}

	if d.WaveformChanged {
		wf, err := source.ParseWaveform(d.NewWaveform)
		if err == nil {
			err = a.synth.SetWaveform(ctx, wf)
		}
		if err != nil {
			slog.Warn("config reload: waveform not applied", "waveform", d.NewWaveform, "err", err)
		}
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config reload: change requires restart", "section", section)
	}
	slog.Info("config reloaded",
		"volumes", len(d.VolumeChanges),
		"waveform_changed", d.WaveformChanged,
		"restart_required", len(d.RestartRequired),
	)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the control server and the config watcher, then closes the
// engines and the backend in that order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("control server shutdown error", "err", err)
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
