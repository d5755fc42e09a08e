package plant

import (
	"context"
	"sync"
	"time"
)

// MockModel implements Model for testing.
type MockModel struct {
	// GenerateFunc is called when Generate is invoked.
	GenerateFunc func(ctx context.Context, req Request) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Generate invocation.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMockModel returns a model that always replies with text.
func NewMockModel(text string) *MockModel {
	return &MockModel{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			return text, nil
		},
	}
}

// NewFailingModel returns a model that always fails with err.
func NewFailingModel(err error) *MockModel {
	return &MockModel{
		GenerateFunc: func(ctx context.Context, req Request) (string, error) {
			return "", err
		},
	}
}

// Name returns "mock".
func (m *MockModel) Name() string { return "mock" }

// Generate calls GenerateFunc and records the call.
func (m *MockModel) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: req, Time: time.Now()})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

// CallCount returns the number of Generate calls.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil if none.
func (m *MockModel) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Verify MockModel implements Model at compile time.
var _ Model = (*MockModel)(nil)
