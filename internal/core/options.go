package core

import (
	"context"
	"time"

	"nodemapper/internal/events"
	"nodemapper/internal/mapping"
	"nodemapper/internal/proxy"
	"nodemapper/pkg/domain"
)

// Logger is the structured logging seam. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies timestamps for timing measurements.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder records the outcome and latency of unit of work operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around unit of work operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type options struct {
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	events   domain.EventBus
	proxies  domain.ProxyFactory
	metadata domain.MetadataProvider
}

// Option customises a UnitOfWork or DocumentManager.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:   noopLogger{},
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		events:   events.NewBus(),
		proxies:  proxy.NewFactory(),
		metadata: mapping.NewProvider(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for timings.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithEventBus replaces the default in-process event bus.
func WithEventBus(b domain.EventBus) Option {
	return func(o *options) {
		if b != nil {
			o.events = b
		}
	}
}

// WithProxyFactory replaces the default placeholder factory.
func WithProxyFactory(f domain.ProxyFactory) Option {
	return func(o *options) {
		if f != nil {
			o.proxies = f
		}
	}
}

// WithMetadataProvider replaces the reflection based metadata provider.
func WithMetadataProvider(p domain.MetadataProvider) Option {
	return func(o *options) {
		if p != nil {
			o.metadata = p
		}
	}
}
