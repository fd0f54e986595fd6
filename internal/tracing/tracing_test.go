package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	t.Parallel()

	stop, err := Init(context.Background(), Config{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStartEnd_NoProvider(t *testing.T) {
	t.Parallel()

	// Without Init the global provider is a no-op; spans must still be
	// safe to use.
	ctx, span := Start(context.Background(), "test.op")
	if ctx == nil {
		t.Fatal("nil context")
	}
	End(span, nil)

	_, span = Start(context.Background(), "test.op")
	End(span, errors.New("boom"))
}
