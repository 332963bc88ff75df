package otel_test

import (
	"context"
	"errors"
	"testing"

	"xdao.co/consign/internal/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("XDAO_CONSIGN_OTEL_ENDPOINT", "")
	t.Setenv("XDAO_CONSIGN_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("XDAO_CONSIGN_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("XDAO_CONSIGN_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable, so nothing is exported.
	t.Setenv("XDAO_CONSIGN_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("XDAO_CONSIGN_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestRun_PropagatesError(t *testing.T) {
	t.Setenv("XDAO_CONSIGN_OTEL_ENDPOINT", "")
	want := errors.New("run failed")
	if err := otel.Run(context.Background(), "test-service", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("Run = %v, want %v", err, want)
	}
}
