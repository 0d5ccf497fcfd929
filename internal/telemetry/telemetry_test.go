package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithTaskID(NewLogger(&buf, "INFO", "json"), "t-1")

	logger.Debug("hidden")
	logger.Info("visible")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if entry["task_id"] != "t-1" {
		t.Errorf("expected task_id in entry, got %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func TestHeaderPropagation(t *testing.T) {
	withRecorder(t)

	ctx, span := StartSpan(context.Background(), "publish")
	headers := map[string]any{"x-other": int64(1)}
	InjectHeaders(ctx, headers)
	span.End()

	if _, ok := headers["traceparent"]; !ok {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	// брокер может вернуть строку как []byte
	headers["traceparent"] = []byte(headers["traceparent"].(string))

	extracted := ExtractHeaders(context.Background(), headers)
	child, childSpan := StartSpan(extracted, "process")
	defer childSpan.End()

	if got, want := childSpan.SpanContext().TraceID(), span.SpanContext().TraceID(); got != want {
		t.Errorf("trace id not propagated: got %s, want %s", got, want)
	}

	var buf bytes.Buffer
	WithTrace(child, NewLogger(&buf, "INFO", "json")).Info("x")
	if !bytes.Contains(buf.Bytes(), []byte(span.SpanContext().TraceID().String())) {
		t.Errorf("expected trace_id in log line: %s", buf.String())
	}
}

func TestSetSpanError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "op")
	SetSpanError(ctx, errors.New("boom"))
	SetSpanError(ctx, nil)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status())
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "courier-worker"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestTrimScheme(t *testing.T) {
	for in, want := range map[string]string{
		"http://otel:4318":  "otel:4318",
		"https://otel:4318": "otel:4318",
		"otel:4318":         "otel:4318",
	} {
		if got := trimScheme(in); got != want {
			t.Errorf("trimScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
