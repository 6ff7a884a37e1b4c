package observe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing the audio output a process renders to.
const (
	AudioBackendKey    = attribute.Key("ambisynth.audio.backend")
	AudioSampleRateKey = attribute.Key("ambisynth.audio.sample_rate")
	AudioFormatKey     = attribute.Key("ambisynth.audio.format")
)

// ProviderConfig describes the process to the OpenTelemetry SDK.
type ProviderConfig struct {
	// ServiceName defaults to "ambisynth".
	ServiceName string

	// ServiceVersion defaults to [BuildVersion].
	ServiceVersion string

	// AudioBackend, SampleRate and SampleFormat end up as resource
	// attributes so dashboards can tell a device run from a headless one.
	// Zero values are omitted.
	AudioBackend string
	SampleRate   int
	SampleFormat string

	// TraceExporter receives finished spans. Nil keeps spans in-process only:
	// they still carry trace IDs for log correlation and X-Correlation-ID.
	TraceExporter sdktrace.SpanExporter
}

// BuildVersion returns the module version stamped into the binary, the VCS
// revision for a local build, or "devel" when neither is known.
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "devel"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// NewResource builds the telemetry resource for cfg after applying defaults.
// OTEL_RESOURCE_ATTRIBUTES and the SDK description are included.
func NewResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ambisynth"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = BuildVersion()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.AudioBackend != "" {
		attrs = append(attrs, AudioBackendKey.String(cfg.AudioBackend))
	}
	if cfg.SampleRate > 0 {
		attrs = append(attrs, AudioSampleRateKey.Int(cfg.SampleRate))
	}
	if cfg.SampleFormat != "" {
		attrs = append(attrs, AudioFormatKey.String(cfg.SampleFormat))
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}
	return res, nil
}

// InitProvider registers global meter and tracer providers for cfg. Metrics
// go through the Prometheus exporter, which feeds the default registry served
// by promhttp on /metrics.
//
// The returned shutdown flushes the tracer first, then the meter provider.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
