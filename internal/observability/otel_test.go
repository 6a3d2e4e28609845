package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
)

func TestStartSpanTagsRequestID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "t-1", RequestID: "req-7"})
	_, span := StartSpan(ctx, "pipeline.analysis", attribute.String("session.id", "s-1"))
	span.End()
	_, bare := StartSpan(context.Background(), "coach.turn")
	bare.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans: want=2 got=%d", len(spans))
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs["request.id"] != "req-7" || attrs["session.id"] != "s-1" {
		t.Fatalf("tagged span attributes: %v", attrs)
	}
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "request.id" {
			t.Fatalf("span without trace data got request.id=%q", kv.Value.AsString())
		}
	}
}
