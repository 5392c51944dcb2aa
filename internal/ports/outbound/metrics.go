// Package outbound defines the outbound port interfaces.
package outbound

import "context"

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordConnect records a connect attempt; status is "success", "rejected",
	// "unsupported_chain" or "error".
	RecordConnect(ctx context.Context, status string)
	RecordChainSwitch(ctx context.Context, chainID int64, status string)
	RecordReadFailure(ctx context.Context, op string)
	RecordTransaction(ctx context.Context, action string, status string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordConnect(context.Context, string) {}
func (NopMetrics) RecordChainSwitch(context.Context, int64, string) {}
func (NopMetrics) RecordReadFailure(context.Context, string) {}
func (NopMetrics) RecordTransaction(context.Context, string, string) {}
