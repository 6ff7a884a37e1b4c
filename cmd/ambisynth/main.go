// Command ambisynth is the entry point for the ambient soundscape and
// keyboard synthesizer server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/ambisynth/internal/app"
	"github.com/MrWong99/ambisynth/internal/config"
	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/pkg/audio"
	"github.com/MrWong99/ambisynth/pkg/audio/device"
	"github.com/MrWong99/ambisynth/pkg/audio/headless"
	"github.com/MrWong99/ambisynth/pkg/audio/speaker"
)

// deviceOpenTimeout bounds how long we wait for the sound device.
const deviceOpenTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults are used when empty)")
	watch := flag.Bool("watch", true, "reload volumes, waveform and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "ambisynth: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "ambisynth: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	slog.Info("ambisynth starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"backend", cfg.Audio.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: observe.BuildVersion(),
		AudioBackend:   string(cfg.Audio.Backend),
		SampleRate:     cfg.Audio.SampleRate,
		SampleFormat:   cfg.Audio.Format,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio backend ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)
	backend := openBackend(ctx, reg, cfg.Audio)

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithLevelVar(level)}
	if *configPath != "" && *watch {
		opts = append(opts, app.WithConfigFile(*configPath, config.DefaultWatchInterval))
	}
	application, err := app.New(ctx, cfg, backend, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if backend != nil {
			_ = backend.Close()
		}
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	return 0
}

// ── Backends ──────────────────────────────────────────────────────────────────

func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterBackend(config.BackendDevice, func(ctx context.Context, cfg config.AudioConfig) (audio.Backend, error) {
		format, err := audio.ParseSampleFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, deviceOpenTimeout)
		defer cancel()
		b, err := device.New(ctx, cfg.SampleRate,
			device.WithFormat(format),
			device.WithBufferSize(cfg.BufferSize),
		)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	reg.RegisterBackend(config.BackendSpeaker, func(_ context.Context, cfg config.AudioConfig) (audio.Backend, error) {
		b, err := speaker.New(cfg.SampleRate, speaker.WithBufferSize(cfg.BufferSize))
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	reg.RegisterBackend(config.BackendHeadless, func(_ context.Context, cfg config.AudioConfig) (audio.Backend, error) {
		return headless.New(cfg.SampleRate, headless.WithRealtime()), nil
	})
}

// openBackend creates the configured backend. When the device cannot be
// opened it falls back to the headless backend if allowed, and otherwise
// returns nil so the engines report themselves unavailable.
func openBackend(ctx context.Context, reg *config.Registry, cfg config.AudioConfig) audio.Backend {
	b, err := reg.CreateBackend(ctx, cfg)
	if err == nil {
		slog.Info("audio backend created", "name", cfg.Backend, "sample_rate", cfg.SampleRate)
		return b
	}
	slog.Error("failed to create audio backend", "name", cfg.Backend, "err", err)

	if cfg.Backend != config.BackendHeadless && cfg.FallbackHeadless {
		fallback := cfg
		fallback.Backend = config.BackendHeadless
		if b, err := reg.CreateBackend(ctx, fallback); err == nil {
			slog.Warn("falling back to headless audio backend")
			return b
		}
	}
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
