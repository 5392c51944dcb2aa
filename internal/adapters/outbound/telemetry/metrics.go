package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/lendkit/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	connects     metric.Int64Counter
	chainSwitch  metric.Int64Counter
	readFailures metric.Int64Counter
	transactions metric.Int64Counter
}

// NewMetrics creates a recorder on the global meter provider.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a recorder on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	connects, err := meter.Int64Counter(
		"wallet_connects_total",
		metric.WithDescription("Wallet connect attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet_connects_total counter: %w", err)
	}

	switches, err := meter.Int64Counter(
		"chain_switches_total",
		metric.WithDescription("Chain switch attempts by target chain and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain_switches_total counter: %w", err)
	}

	reads, err := meter.Int64Counter(
		"chain_read_failures_total",
		metric.WithDescription("Failed contract reads by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain_read_failures_total counter: %w", err)
	}

	txs, err := meter.Int64Counter(
		"transactions_total",
		metric.WithDescription("Submitted transactions by action and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions_total counter: %w", err)
	}

	return &Metrics{
		connects:     connects,
		chainSwitch:  switches,
		readFailures: reads,
		transactions: txs,
	}, nil
}

func (m *Metrics) RecordConnect(ctx context.Context, status string) {
	m.connects.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordChainSwitch(ctx context.Context, chainID int64, status string) {
	m.chainSwitch.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("chain_id", chainID),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordReadFailure(ctx context.Context, op string) {
	m.readFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) RecordTransaction(ctx context.Context, action string, status string) {
	m.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}
