package observability

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage starts a span named stage.<name> and returns a function that ends it,
// recording err (if non-nil) as the span's status. Intended for the one
// span per pipeline stage spec.md's ambient stack calls for: authenticate,
// rate-check, sanitize, evaluate, decide, audit.
func Stage(ctx context.Context, tracer trace.Tracer, name string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "stage."+name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
