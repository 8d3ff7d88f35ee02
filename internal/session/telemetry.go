package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/chaz8081/audioembed/internal/session"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	runsTotal  metric.Int64Counter
	runSeconds metric.Float64Histogram
)

// Run outcomes reported on audioembed_runs_total.
const (
	outcomeOK            = "ok"
	outcomeNotConfigured = "not_configured"
	outcomeEmptyAudio    = "empty_audio"
	outcomeEngineFailure = "engine_failure"
)

func init() {
	var err error
	runsTotal, err = meter.Int64Counter(
		"audioembed_runs_total",
		metric.WithDescription("Inference runs by outcome"),
	)
	if err != nil {
		panic(err)
	}
	runSeconds, err = meter.Float64Histogram(
		"audioembed_run_seconds",
		metric.WithDescription("Wall time of inference runs, decode included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}

func recordRun(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	runsTotal.Add(ctx, 1, attrs)
	runSeconds.Record(ctx, elapsed.Seconds(), attrs)
}

// recordErrorAndStatus marks span failed when err is non-nil and reports
// whether it did.
func recordErrorAndStatus(span trace.Span, err error) bool {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true
	}
	span.SetStatus(codes.Ok, "OK")
	return false
}
