// Package observe provides application-wide observability primitives for
// ambisynth: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ambisynth metrics.
const meterName = "github.com/MrWong99/ambisynth"

// Engine names used as the "engine" attribute value.
const (
	EngineSoundscape = "soundscape"
	EngineSynth      = "synth"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveVoices tracks the number of voices currently held by an engine.
	// A voice stops counting when its release starts. Use with attribute:
	//   attribute.String("engine", ...)
	ActiveVoices metric.Int64UpDownCounter

	// --- Counters ---

	// NoteEvents counts synthesizer note commands. Use with attributes:
	//   attribute.String("note", ...), attribute.String("event", ...)
	NoteEvents metric.Int64Counter

	// Chirps counts bird chirp pulses.
	Chirps metric.Int64Counter

	// StateTransitions counts engine state changes. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("state", ...)
	StateTransitions metric.Int64Counter

	// VolumeChanges counts mix level updates. Use with attribute:
	//   attribute.String("category", ...)
	VolumeChanges metric.Int64Counter

	// --- Error counters ---

	// UnavailableOps counts operations refused because the audio backend is
	// not ready. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("op", ...)
	UnavailableOps metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// control-surface requests, which should complete well within one audio
// buffer.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Gauges (UpDownCounters).
	if met.ActiveVoices, err = m.Int64UpDownCounter("ambisynth.active_voices",
		metric.WithDescription("Number of voices currently owned by an engine."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.NoteEvents, err = m.Int64Counter("ambisynth.note.events",
		metric.WithDescription("Total synthesizer note commands by note and event."),
	); err != nil {
		return nil, err
	}
	if met.Chirps, err = m.Int64Counter("ambisynth.chirps",
		metric.WithDescription("Total bird chirp pulses."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("ambisynth.state.transitions",
		metric.WithDescription("Total engine state transitions by engine and new state."),
	); err != nil {
		return nil, err
	}
	if met.VolumeChanges, err = m.Int64Counter("ambisynth.volume.changes",
		metric.WithDescription("Total mix level changes by category."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.UnavailableOps, err = m.Int64Counter("ambisynth.unavailable",
		metric.WithDescription("Total operations refused because the audio engine is unavailable."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ambisynth.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// AddActiveVoices adjusts the active voice gauge for engine by delta.
func (m *Metrics) AddActiveVoices(ctx context.Context, engine string, delta int64) {
	m.ActiveVoices.Add(ctx, delta,
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}

// RecordNoteEvent is a convenience method that records a note command with
// the standard attribute set. event is one of "on", "off" or "release".
func (m *Metrics) RecordNoteEvent(ctx context.Context, note, event string) {
	m.NoteEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("note", note),
			attribute.String("event", event),
		),
	)
}

// RecordChirp records one chirp pulse.
func (m *Metrics) RecordChirp(ctx context.Context) {
	m.Chirps.Add(ctx, 1)
}

// RecordTransition records engine entering state.
func (m *Metrics) RecordTransition(ctx context.Context, engine, state string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("state", state),
		),
	)
}

// RecordVolumeChange records a mix level update for category.
func (m *Metrics) RecordVolumeChange(ctx context.Context, category string) {
	m.VolumeChanges.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordUnavailable records an operation refused for lack of a ready backend.
func (m *Metrics) RecordUnavailable(ctx context.Context, engine, op string) {
	m.UnavailableOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("op", op),
		),
	)
}
