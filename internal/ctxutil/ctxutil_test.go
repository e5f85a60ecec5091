package ctxutil

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLogger_DefaultsToNop(t *testing.T) {
	if Logger(context.Background()) == nil {
		t.Fatal("expected a no-op logger")
	}
}

func TestLogger_RoundTrip(t *testing.T) {
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if Logger(ctx) != logger {
		t.Error("expected the stored logger")
	}
}

func TestInstanceFromContext(t *testing.T) {
	if got := InstanceFromContext(context.Background()); got != "" {
		t.Errorf("expected empty instance, got %q", got)
	}
	ctx := WithInstanceID(context.Background(), "tmux_4")
	if got := InstanceFromContext(ctx); got != "tmux_4" {
		t.Errorf("expected tmux_4, got %q", got)
	}
}
