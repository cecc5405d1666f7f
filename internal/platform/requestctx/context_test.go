package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestDetachKeepsValuesDropsCancellation(t *testing.T) {
	logger := zap.NewExample()
	ctx, cancel := context.WithCancel(WithTrace(WithLogger(context.Background(), logger), TraceInfo{TraceID: "abc"}))
	cancel()

	detached := Detach(ctx)
	if detached.Err() != nil {
		t.Fatalf("expected detached context to be live, got %v", detached.Err())
	}
	if Logger(detached) != logger {
		t.Fatalf("expected logger carried over")
	}
	if TraceID(detached) != "abc" {
		t.Fatalf("expected trace id carried over, got %q", TraceID(detached))
	}
}
