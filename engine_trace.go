package sessionguard

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/sessionguard"

// Span names, one per public lifecycle operation.
const (
	spanLogin           = "sessionguard.Login"
	spanValidate        = "sessionguard.Validate"
	spanRefresh         = "sessionguard.Refresh"
	spanLogout          = "sessionguard.Logout"
	spanRevokeAll       = "sessionguard.RevokeAll"
	spanRedeemChallenge = "sessionguard.RedeemChallenge"
)

// AttrOutcome labels a span with "ok" or the audit error code of the call.
var AttrOutcome = attribute.Key("sessionguard.outcome")

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

// endSpan records err on span and ends it. Credential rejections are expected
// outcomes and do not mark the span as failed; dependency failures do.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetAttributes(AttrOutcome.String("ok"))
		return
	}
	code := auditErrorCode(err)
	span.SetAttributes(AttrOutcome.String(string(code)))
	if code == auditErrUnavailable || code == auditErrInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
