package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := Setup("quote-core-test")
	if err != nil {
		t.Fatalf("Failed to setup telemetry: %v", err)
	}

	if otel.GetTracerProvider() == nil {
		t.Error("Tracer provider not set")
	}
	if otel.GetMeterProvider() == nil {
		t.Error("Meter provider not set")
	}

	if GetTracer("test-tracer") == nil {
		t.Error("Failed to get tracer")
	}
	if GetMeter("test-meter") == nil {
		t.Error("Failed to get meter")
	}

	// Instruments must be usable after Setup
	holder := GetGlobalMetrics()
	holder.AddTick(context.Background())
	holder.SetKillSwitchOpen("session-1", true)
	state := holder.GetKillSwitchState()
	if state["session-1"] != 1 {
		t.Errorf("kill switch gauge state = %v, want 1", state["session-1"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
