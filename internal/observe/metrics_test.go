package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetrics_AllInstruments(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.FramesSent == nil || m.FramesDropped == nil || m.ChunksScheduled == nil ||
		m.DecodeErrors == nil || m.Interrupts == nil || m.Turns == nil ||
		m.SessionDuration == nil || m.ActiveSessions == nil {
		t.Error("NewMetrics left an instrument nil")
	}

	// Instruments must accept recordings without panicking.
	ctx := context.Background()
	m.FramesSent.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.RecordTeardown(ctx, 12.5, "closed")
}

func TestInitProvider_Shutdown(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitProvider(ctx, ProviderConfig{ServiceName: "vita-test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
