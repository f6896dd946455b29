package conversion

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"templateapi/internal/model"
)

const tracerName = "templateapi/internal/conversion"

// Instrumented wraps a Transformer with Prometheus metrics and a tracing span.
type Instrumented struct {
	next     Transformer
	provider string
	tracer   trace.Tracer
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewInstrumented registers the conversion metrics on reg and returns the decorator.
func NewInstrumented(next Transformer, provider string, reg prometheus.Registerer) (*Instrumented, error) {
	in := &Instrumented{
		next:     next,
		provider: provider,
		tracer:   otel.Tracer(tracerName),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversion_requests_total",
				Help: "Conversions attempted, by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conversion_duration_seconds",
				Help:    "Latency of provider conversion calls.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"provider"},
		),
	}
	if err := reg.Register(in.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(in.duration); err != nil {
		return nil, err
	}
	return in, nil
}

// Transform delegates to the wrapped Transformer and records the outcome:
// "replacement", "suggestions", "timeout", "malformed" or "error".
func (in *Instrumented) Transform(ctx context.Context, text string) (*model.ConvertResult, error) {
	ctx, span := in.tracer.Start(ctx, "conversion.Transform", trace.WithAttributes(
		attribute.String("conversion.provider", in.provider),
		attribute.Int("conversion.input_length", len(text)),
	))
	defer span.End()

	start := time.Now()
	res, err := in.next.Transform(ctx, text)
	in.duration.WithLabelValues(in.provider).Observe(time.Since(start).Seconds())

	outcome := outcomeOf(res, err)
	in.requests.WithLabelValues(in.provider, outcome).Inc()
	span.SetAttributes(attribute.String("conversion.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return res, err
}

func outcomeOf(res *model.ConvertResult, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case err != nil:
		return "error"
	case res == nil:
		return "malformed"
	case res.IsReplacement():
		return "replacement"
	default:
		return "suggestions"
	}
}
