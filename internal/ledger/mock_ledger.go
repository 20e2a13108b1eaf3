package ledger

import "sync"

// MockLedger implements Interface in memory for testing and demo mode.
type MockLedger struct {
	mu              sync.Mutex
	records         []Record
	appendError     error
	appendCallCount int
}

// NewMockLedger creates an empty in-memory ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCallCount++
	if m.appendError != nil {
		return m.appendError
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MockLedger) ReadAll() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *MockLedger) Statistics() (*Statistics, error) {
	records, err := m.ReadAll()
	if err != nil {
		return nil, err
	}
	return ComputeStatistics(records), nil
}

// Mock control methods for testing.

func (m *MockLedger) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendError = err
}

func (m *MockLedger) AppendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCallCount
}
