package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/homereach/lead-exchange-backend"

// StartAuctionSpan opens the root span for one lead's run through the
// pipeline. The caller ends the span when the run settles.
func StartAuctionSpan(ctx context.Context, leadID, serviceTypeID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "auction.run",
		trace.WithAttributes(
			attribute.String("lead.id", leadID),
			attribute.String("lead.service_type", serviceTypeID),
		),
	)
}

// WithSpanError records the error and marks the span failed
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
