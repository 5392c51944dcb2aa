package telemetry

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func total(sum metricdata.Sum[int64], key, value string) int64 {
	var n int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			n += dp.Value
		}
	}
	return n
}

func TestMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetricsWithMeter(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsWithMeter: %v", err)
	}

	ctx := context.Background()
	m.RecordConnect(ctx, "success")
	m.RecordConnect(ctx, "success")
	m.RecordConnect(ctx, "rejected")
	m.RecordChainSwitch(ctx, 10, "success")
	m.RecordReadFailure(ctx, "positions")
	m.RecordTransaction(ctx, "approve", "mined")

	got := collect(t, reader)
	if n := total(got["wallet_connects_total"], "status", "success"); n != 2 {
		t.Errorf("connects success = %d, want 2", n)
	}
	if n := total(got["wallet_connects_total"], "status", "rejected"); n != 1 {
		t.Errorf("connects rejected = %d, want 1", n)
	}
	if n := total(got["chain_switches_total"], "status", "success"); n != 1 {
		t.Errorf("chain switches = %d, want 1", n)
	}
	if n := total(got["chain_read_failures_total"], "op", "positions"); n != 1 {
		t.Errorf("read failures = %d, want 1", n)
	}
	if n := total(got["transactions_total"], "action", "approve"); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
}

func TestInitMetrics_NoEndpoint(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), MetricConfig{ServiceName: "lendkit"})
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := InitTracer(context.Background(), TracerConfig{})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	defer shutdown(context.Background())
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracer replaced the global provider")
	}
}

func TestInitTracer_Stdout(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	var buf bytes.Buffer
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "lendkit-test", Stdout: true, Writer: &buf})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "connect")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"connect"`)) {
		t.Errorf("span not exported: %s", buf.String())
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}
