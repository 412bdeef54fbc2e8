package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// globalTracer installs an in-memory tracer provider for the test.
func globalTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_Attributes(t *testing.T) {
	exp := globalTracer(t)

	ctx, span := StartSpan(context.Background(), "grammar.Build", KeyGrammar.String("whitelist"))
	if CorrelationID(ctx) == "" {
		t.Error("span context has no trace ID")
	}
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "grammar.Build" {
		t.Errorf("name = %q", s.Name)
	}
	if s.InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", s.InstrumentationScope.Name, tracerName)
	}
	found := false
	for _, a := range s.Attributes {
		if a.Key == KeyGrammar && a.Value.AsString() == "whitelist" {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v, missing %s", s.Attributes, KeyGrammar)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := globalTracer(t)

	_, failing := StartSpan(context.Background(), "failing")
	EndSpan(failing, errors.New("no path accepts input"))
	_, fine := StartSpan(context.Background(), "fine")
	EndSpan(fine, nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Error || len(spans[0].Events) == 0 {
		t.Errorf("failing span status = %v events = %d", spans[0].Status, len(spans[0].Events))
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("successful span marked as error")
	}
}

func TestCorrelationID(t *testing.T) {
	globalTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	seen := make(map[string]struct{}, 50)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "unique")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not 32 lowercase hex chars", cid)
		}
		if _, dup := seen[cid]; dup {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestLogger(t *testing.T) {
	globalTracer(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("without span")
	ctx, span := StartSpan(context.Background(), "with-span")
	Logger(ctx).Info("with span")
	span.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %q", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("span-less line carries trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+CorrelationID(ctx)) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("span line lacks trace context: %s", lines[1])
	}
}
