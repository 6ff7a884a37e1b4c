package app_test

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/ambisynth/internal/app"
	"github.com/MrWong99/ambisynth/internal/config"
	"github.com/MrWong99/ambisynth/internal/observe"
	"github.com/MrWong99/ambisynth/internal/voice"
	"github.com/MrWong99/ambisynth/pkg/audio/mock"
	"github.com/MrWong99/ambisynth/pkg/dsp/source"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, backend *mock.Backend, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	var a *app.App
	var err error
	if backend == nil {
		a, err = app.New(context.Background(), cfg, nil, opts...)
	} else {
		a, err = app.New(context.Background(), cfg, backend, opts...)
	}
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

// startRun runs a until the test ends and returns its base URL.
func startRun(t *testing.T, a func(net.Listener) *app.App) (string, *app.App, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	application := a(ln)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()
	t.Cleanup(cancel)
	return "http://" + ln.Addr().String(), application, cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_FromDefaults(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default(), &mock.Backend{})

	if a.Soundscape() == nil || a.Synth() == nil {
		t.Fatal("engines not created")
	}
	if got := a.Synth().Waveform(); got != source.Sine {
		t.Errorf("synth waveform = %v, want sine", got)
	}
	if got := a.Soundscape().Volumes()[voice.Wind]; got != config.DefaultVolume {
		t.Errorf("wind volume = %v, want %v", got, config.DefaultVolume)
	}
}

func TestNew_InvalidWaveform(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Synth.Waveform = "noise"

	if _, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("expected error for invalid synth waveform")
	}
}

func TestNilBackend_ReportsUnavailable(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default(), nil)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/soundscape/play", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("play status = %d, want 503", resp.StatusCode)
	}

	resp, err = srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestRun_StartsBackendAndShutsDown(t *testing.T) {
	t.Parallel()
	backend := &mock.Backend{}

	base, a, cancel, done := startRun(t, func(ln net.Listener) *app.App {
		return newApp(t, config.Default(), backend, app.WithListener(ln))
	})

	waitFor(t, "backend start", backend.Ready)

	resp, err := http.Post(base+"/soundscape/play", "application/json", nil)
	if err != nil {
		t.Fatalf("POST play: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("play status = %d, want 200", resp.StatusCode)
	}
	if !a.Soundscape().IsPlaying() {
		t.Error("soundscape not playing after POST")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if a.Soundscape().IsPlaying() {
		t.Error("soundscape still playing after Shutdown")
	}
	if backend.CallCountClose != 1 {
		t.Errorf("backend closed %d times, want 1", backend.CallCountClose)
	}
	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRun_BackendStartFailureKeepsServing(t *testing.T) {
	t.Parallel()
	backend := &mock.Backend{StartError: os.ErrPermission}

	base, _, _, _ := startRun(t, func(ln net.Listener) *app.App {
		return newApp(t, config.Default(), backend, app.WithListener(ln))
	})

	var resp *http.Response
	waitFor(t, "control server", func() bool {
		var err error
		resp, err = http.Get(base + "/healthz")
		return err == nil
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err := http.Post(base+"/synth/notes/C/on", "application/json", nil)
	if err != nil {
		t.Fatalf("POST note on: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("note on status = %d, want 503", resp.StatusCode)
	}
}

func TestApplyConfig_HotReload(t *testing.T) {
	t.Parallel()
	lv := new(slog.LevelVar)
	backend := &mock.Backend{ReadyResult: true}
	a := newApp(t, config.Default(), backend, app.WithLevelVar(lv))

	if err := a.Soundscape().Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	old := a.Config()
	next := config.Default()
	next.Server.LogLevel = config.LogDebug
	next.Soundscape.Volumes["rain"] = 0.9
	next.Synth.Waveform = "sawtooth"
	next.Audio.SampleRate = 96000

	a.ApplyConfig(context.Background(), old, next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := a.Soundscape().Volumes()[voice.Rain]; got != 0.9 {
		t.Errorf("rain volume = %v, want 0.9", got)
	}
	if got := a.Soundscape().Voices()[voice.Rain].GainTarget(); got != 0.9 {
		t.Errorf("live rain gain = %v, want 0.9", got)
	}
	if got := a.Synth().Waveform(); got != source.Sawtooth {
		t.Errorf("waveform = %v, want sawtooth", got)
	}
	if a.Config() != next {
		t.Error("Config() does not return the applied config")
	}
}

func TestConfigFile_WatchedWhileRunning(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ambisynth.yaml")
	write := func(content string) {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("soundscape:\n  volumes:\n    wind: 0.5\n")

	_, a, _, _ := startRun(t, func(ln net.Listener) *app.App {
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return newApp(t, cfg, &mock.Backend{}, app.WithListener(ln),
			app.WithConfigFile(path, 20*time.Millisecond))
	})

	write("soundscape:\n  volumes:\n    wind: 0.1\n")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	waitFor(t, "wind volume reload", func() bool {
		return a.Soundscape().Volumes()[voice.Wind] == 0.1
	})
}
