package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize        = 1000
	defaultMaxPages        = 1000 // Limit to prevent unbounded replays when a lane is far behind
	defaultLockStripes     = 64
	defaultJoinConcurrency = 8
)

type options struct {
	pageSize        int
	maxPages        int
	laneLocking     bool
	lockStripes     int
	joinConcurrency int
	persist         bool
	nowFn           func() time.Time
	logger          *slog.Logger
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() options {
	return options{
		pageSize:        defaultPageSize,
		maxPages:        defaultMaxPages,
		lockStripes:     defaultLockStripes,
		joinConcurrency: defaultJoinConcurrency,
		persist:         true,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithPageSize sets how many events are fetched per source call.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithMaxPages caps the number of pages one replay may fetch. Reaching the
// cap fails the computation instead of returning a partial snapshot.
func WithMaxPages(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// WithLaneLocking serialises computations of the same lane inside this
// process over the given number of lock stripes. Checkpoint compare-and-set
// still guards writes across processes.
func WithLaneLocking(stripes int) Option {
	return func(o *options) {
		o.laneLocking = true
		if stripes > 0 {
			o.lockStripes = stripes
		}
	}
}

// WithJoinConcurrency bounds how many join lanes ComputeJoins runs at once.
func WithJoinConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.joinConcurrency = n
		}
	}
}

// WithPersistence toggles saving advanced checkpoints.
func WithPersistence(enabled bool) Option {
	return func(o *options) {
		o.persist = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.nowFn = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

func (o *options) resolve() {
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
}
