package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/archon-research/lendkit/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*MockMetrics)(nil)

// MockMetrics records every metric as a "kind:label" string.
type MockMetrics struct {
	mu      sync.Mutex
	records []string
}

func (m *MockMetrics) add(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, fmt.Sprintf(format, args...))
}

func (m *MockMetrics) RecordConnect(_ context.Context, status string) {
	m.add("connect:%s", status)
}

func (m *MockMetrics) RecordChainSwitch(_ context.Context, chainID int64, status string) {
	m.add("switch:%d:%s", chainID, status)
}

func (m *MockMetrics) RecordReadFailure(_ context.Context, op string) {
	m.add("read_failure:%s", op)
}

func (m *MockMetrics) RecordTransaction(_ context.Context, action string, status string) {
	m.add("tx:%s:%s", action, status)
}

// Records returns everything recorded so far.
func (m *MockMetrics) Records() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.records...)
}

// Count returns how often record was recorded.
func (m *MockMetrics) Count(record string) int {
	n := 0
	for _, r := range m.Records() {
		if r == record {
			n++
		}
	}
	return n
}
